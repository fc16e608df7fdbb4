package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SessionStore persists upload sessions. The engine serializes
// conflicting writes per session, so implementations only need to make
// individual operations atomic.
type SessionStore interface {
	// CreateSession persists a new session and assigns its internal id.
	CreateSession(ctx context.Context, s *UploadSession) error

	// SessionByToken returns the session for a client token, or
	// ErrSessionNotFound.
	SessionByToken(ctx context.Context, token string) (*UploadSession, error)

	// SessionByID returns the session for an internal id, or
	// ErrSessionNotFound.
	SessionByID(ctx context.Context, id int64) (*UploadSession, error)

	// CompletedByOriginalName returns the most recent completed session
	// whose client-declared filename matches name, or ErrSessionNotFound.
	// This is how imports resolve asset references by name.
	CompletedByOriginalName(ctx context.Context, name string) (*UploadSession, error)

	// UpdateSession overwrites the stored session.
	UpdateSession(ctx context.Context, s *UploadSession) error

	// DeleteSession removes a session record. Used by operator cleanup.
	DeleteSession(ctx context.Context, token string) error
}

// MemorySessionStore is an in-memory SessionStore used by tests and
// single-process deployments without a database.
type MemorySessionStore struct {
	mu     sync.RWMutex
	nextID int64
	byTok  map[string]*UploadSession
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{byTok: make(map[string]*UploadSession)}
}

// CreateSession implements SessionStore.
func (m *MemorySessionStore) CreateSession(_ context.Context, s *UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	s.ID = m.nextID
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.byTok[s.Token] = cloneSession(s)
	return nil
}

// SessionByToken implements SessionStore.
func (m *MemorySessionStore) SessionByToken(_ context.Context, token string) (*UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byTok[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// SessionByID implements SessionStore.
func (m *MemorySessionStore) SessionByID(_ context.Context, id int64) (*UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.byTok {
		if s.ID == id {
			return cloneSession(s), nil
		}
	}
	return nil, ErrSessionNotFound
}

// CompletedByOriginalName implements SessionStore.
func (m *MemorySessionStore) CompletedByOriginalName(_ context.Context, name string) (*UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *UploadSession
	for _, s := range m.byTok {
		if s.OriginalName != name || s.Status != UploadCompleted {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrSessionNotFound
	}
	return cloneSession(latest), nil
}

// UpdateSession implements SessionStore.
func (m *MemorySessionStore) UpdateSession(_ context.Context, s *UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byTok[s.Token]; !ok {
		return ErrSessionNotFound
	}
	s.UpdatedAt = time.Now()
	m.byTok[s.Token] = cloneSession(s)
	return nil
}

// DeleteSession implements SessionStore.
func (m *MemorySessionStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.byTok, token)
	return nil
}

// cloneSession copies a session so callers never share the stored
// slice or struct with the map.
func cloneSession(s *UploadSession) *UploadSession {
	c := *s
	c.ChunkIndices = append([]int(nil), s.ChunkIndices...)
	sort.Ints(c.ChunkIndices)
	return &c
}
