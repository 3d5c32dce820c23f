package cache

import (
	"context"
	"sync"

	"github.com/aspl-project/aspl/internal/article"
)

// MemoryStore is an in-process Store for development and testing.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	clock   article.Clock
}

// NewMemoryStore constructs a MemoryStore using clock for expiry checks.
func NewMemoryStore(clock article.Clock) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		clock:   clock,
	}
}

// Get returns the live entry for url, or ok=false when missing or expired.
// Expired entries are removed lazily.
func (s *MemoryStore) Get(_ context.Context, url string) (Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[url]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if !s.clock.Now().Before(entry.ExpiresAt) {
		s.mu.Lock()
		if cur, still := s.entries[url]; still && cur.ExpiresAt.Equal(entry.ExpiresAt) {
			delete(s.entries, url)
		}
		s.mu.Unlock()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set replaces the entry for the URL atomically.
func (s *MemoryStore) Set(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.URL] = entry
	return nil
}

// Delete removes the entry for url if present.
func (s *MemoryStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, url)
	return nil
}

// Len reports the number of stored entries, including any not yet lazily
// expired. Used by tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
