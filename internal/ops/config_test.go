package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/gateway"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{"token":"abc"}`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.Token)
	assert.Equal(t, defaultBaseURL, loaded.BaseURL)
	assert.False(t, loaded.Compress)
	assert.Equal(t, gateway.HeartbeatLax, loaded.HeartbeatMode)
	assert.Equal(t, SessionMemory, loaded.Session.Backend)
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `{
		"token": "abc",
		"baseUrl": "https://api.example/v3",
		"compress": true,
		"heartbeat": {"mode": "strict"},
		"session": {"backend": "file", "path": "/tmp/session.json"}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example/v3", loaded.BaseURL)
	assert.True(t, loaded.Compress)
	assert.Equal(t, gateway.HeartbeatStrict, loaded.HeartbeatMode)
	assert.Equal(t, SessionFile, loaded.Session.Backend)
	assert.Equal(t, "/tmp/session.json", loaded.Session.Path)
}

func TestResolveRejectsBadConfig(t *testing.T) {
	for name, cfg := range map[string]FileConfig{
		"empty_token":       {},
		"bad_heartbeat":     {Token: "abc", Heartbeat: HeartbeatConfig{Mode: "eager"}},
		"bad_backend":       {Token: "abc", Session: SessionConfig{Backend: "redis"}},
		"file_without_path": {Token: "abc", Session: SessionConfig{Backend: SessionFile}},
		"pg_without_bot_id": {Token: "abc", Session: SessionConfig{Backend: SessionPostgres}},
		"pg_without_db": {Token: "abc", Session: SessionConfig{
			Backend: SessionPostgres, BotID: "bot-1",
		}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(cfg)
			assert.Error(t, err)
		})
	}
}

func TestResolvePostgresBackend(t *testing.T) {
	loaded, err := Resolve(FileConfig{
		Token:    "abc",
		Session:  SessionConfig{Backend: SessionPostgres, BotID: "bot-1"},
		Postgres: &PostgresConfig{Database: "bot"},
	})
	require.NoError(t, err)
	assert.Equal(t, SessionPostgres, loaded.Session.Backend)
	require.NotNil(t, loaded.Postgres)
	assert.Equal(t, "bot", loaded.Postgres.Database)
}
