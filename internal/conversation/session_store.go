package conversation

import (
	"context"
	"sync"
	"time"
)

// StoredSession is the persisted snapshot of one session.
type StoredSession struct {
	ID                 string    `json:"id"`
	Turns              []Turn    `json:"turns"`
	CatalogFingerprint string    `json:"catalog_fingerprint"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SessionStore persists session snapshots between requests. Load returns
// ErrSessionNotFound for unknown or expired ids.
type SessionStore interface {
	Save(ctx context.Context, session StoredSession) error
	Load(ctx context.Context, id string) (StoredSession, error)
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore keeps snapshots in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]StoredSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]StoredSession)}
}

func (s *MemorySessionStore) Save(_ context.Context, session StoredSession) error {
	turns := make([]Turn, len(session.Turns))
	copy(turns, session.Turns)
	session.Turns = turns

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *MemorySessionStore) Load(_ context.Context, id string) (StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return StoredSession{}, ErrSessionNotFound
	}
	turns := make([]Turn, len(session.Turns))
	copy(turns, session.Turns)
	session.Turns = turns
	return session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
