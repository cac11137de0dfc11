package state

import (
	"context"
	"sync"
	"time"
)

type memoryEntry[T any] struct {
	value   T
	expires time.Time
}

// MemoryManager keeps sessions in process memory. Sessions are lost on restart.
type MemoryManager[T any] struct {
	mu       sync.Mutex
	sessions map[int64]memoryEntry[T]
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryManager constructs an in-memory Manager. A positive ttl expires sessions
// that were not written for that long.
func NewMemoryManager[T any](ttl time.Duration) *MemoryManager[T] {
	return &MemoryManager[T]{
		sessions: make(map[int64]memoryEntry[T]),
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for expiry.
func (m *MemoryManager[T]) WithClock(now func() time.Time) *MemoryManager[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// lookup must be called with mu held.
func (m *MemoryManager[T]) lookup(userID int64) (memoryEntry[T], bool) {
	e, ok := m.sessions[userID]
	if !ok {
		return e, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.sessions, userID)
		return memoryEntry[T]{}, false
	}
	return e, true
}

func (m *MemoryManager[T]) entry(v T) memoryEntry[T] {
	e := memoryEntry[T]{value: v}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	return e
}

func (m *MemoryManager[T]) Load(_ context.Context, userID int64) (T, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(userID)
	return e.value, ok, nil
}

func (m *MemoryManager[T]) Begin(_ context.Context, userID int64, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = m.entry(v)
	return nil
}

func (m *MemoryManager[T]) Save(_ context.Context, userID int64, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(userID); !ok {
		return ErrNoSession
	}
	m.sessions[userID] = m.entry(v)
	return nil
}

func (m *MemoryManager[T]) End(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MemoryManager[T]) Active(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(userID)
	return ok, nil
}

// Len returns the number of live sessions, pruning expired ones.
func (m *MemoryManager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		m.lookup(id)
	}
	return len(m.sessions)
}
