package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/yanun0323/errors"
)

// FileStore persists the session as a small JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(context.Context) (*Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read session file")
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "unmarshal session file")
	}
	return &sess, nil
}

func (f *FileStore) Save(_ context.Context, sess Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create session dir")
		}
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return errors.Wrap(err, "write session file")
	}
	return nil
}

func (f *FileStore) Clear(context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove session file")
	}
	return nil
}
