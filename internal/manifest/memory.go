package manifest

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and dry runs. It mirrors the
// SQLite store's single-writer discipline with a mutex.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[string]map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[string]Entry)}
}

// Load returns a copy of the stored state for the run key, or an empty
// manifest when none exists.
func (s *MemoryStore) Load(_ context.Context, runKey string) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := New(runKey)
	for sym, e := range s.runs[runKey] {
		m.Entries[sym] = e
	}
	return m, nil
}

// Reset drops all entries for the run key.
func (s *MemoryStore) Reset(_ context.Context, runKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runKey)
	return nil
}

// RecordAttempt upserts the entry for the run key.
func (s *MemoryStore) RecordAttempt(_ context.Context, runKey string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runs[runKey] == nil {
		s.runs[runKey] = make(map[string]Entry)
	}
	s.runs[runKey][e.Symbol] = e
	return nil
}
