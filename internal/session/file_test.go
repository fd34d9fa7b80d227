package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	loaded, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	err = store.Save(t.Context(), Session{LastSN: 42, SessionID: "abc"})
	require.NoError(t, err)

	loaded, err = store.Load(t.Context())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(42), loaded.LastSN)
	assert.Equal(t, "abc", loaded.SessionID)

	err = store.Clear(t.Context())
	require.NoError(t, err)

	loaded, err = store.Load(t.Context())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Clearing twice is fine.
	require.NoError(t, store.Clear(t.Context()))
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := store.Load(t.Context())
	assert.Error(t, err)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	loaded, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Save(t.Context(), Session{LastSN: 7, SessionID: "x"}))

	loaded, err = store.Load(t.Context())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(7), loaded.LastSN)

	require.NoError(t, store.Clear(t.Context()))
	loaded, err = store.Load(t.Context())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
