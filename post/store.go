package post

import (
	"context"
	"sync"
	"time"
)

// Store maps session ids to sessions. Implementations must be safe for
// concurrent use from multiple chats and must serialize mutations per
// session id.
type Store interface {
	// Create adds a new session. It fails with ErrDuplicateSession when the
	// id is live or belonged to a session that already reached a terminal
	// state during this process lifetime.
	Create(ctx context.Context, s Session) error

	// Get returns a snapshot of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (Session, error)

	// Update runs fn on the session under its per-session lock and persists
	// the result if fn returns nil. No other mutation of the same id can
	// interleave with fn. Returns ErrNotFound for unknown ids and
	// ErrInvalidState for ids whose session was finalized and removed.
	Update(ctx context.Context, id string, fn func(*Session) error) error

	// Remove deletes the session. Removing an absent id is a no-op.
	Remove(ctx context.Context, id string) error
}

type memoryEntry struct {
	mu sync.Mutex
	s  Session
}

// MemoryStore is the process-lifetime in-memory Store. Terminal ids are
// remembered after removal so they are never reused.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	terminal map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		terminal: make(map[string]struct{}),
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicateSession
	}
	if _, ok := m.terminal[s.ID]; ok {
		return ErrDuplicateSession
	}
	if s.State == "" {
		s.State = StateDraft
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.ID] = &memoryEntry{s: s}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	e.mu.Lock()
	s := e.s
	e.mu.Unlock()
	return s, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) error {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		if m.wasTerminal(id) {
			return ErrInvalidState
		}
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// fn mutates a copy so a failing fn leaves no partial write behind.
	s := e.s
	if err := fn(&s); err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()
	wasTerminal := e.s.State.Terminal()
	e.s = s
	if s.State.Terminal() && !wasTerminal {
		m.mu.Lock()
		m.terminal[id] = struct{}{}
		m.mu.Unlock()
	}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) wasTerminal(id string) bool {
	m.mu.RLock()
	_, ok := m.terminal[id]
	m.mu.RUnlock()
	return ok
}
