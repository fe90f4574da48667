package kv

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

type memEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// MemStore is an in-memory [Store] for tests and single-node development.
// Expiry is checked lazily on read. Safe for concurrent use.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]memEntry

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Put implements [Store].
func (s *MemStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete implements [Store].
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// SetClock replaces the store's clock. Test hook for expiry behaviour.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
