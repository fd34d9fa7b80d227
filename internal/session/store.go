// Package session persists the resumable gateway session: the last consumed
// sequence number and the session id handed out by the HELLO handshake.
package session

import (
	"context"
	"sync"
)

// Session is the state needed to resume instead of replaying history.
type Session struct {
	LastSN    uint64 `json:"lastSn"`
	SessionID string `json:"sessionId"`
}

// Store is the durable backend. Load returns (nil, nil) when nothing has
// been persisted yet. Save overwrites; Clear removes.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, sess Session) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process memory. Useful for tests and for
// bots that prefer replaying history after a restart.
type MemoryStore struct {
	mu   sync.Mutex
	sess *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil, nil
	}
	copied := *m.sess
	return &copied, nil
}

func (m *MemoryStore) Save(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &sess
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	return nil
}
