// Package dedup keeps track of the contact identities that were already
// handled during a run.
package dedup

import "sync"

// Key canonicalizes a contact identity. Name and phone are used verbatim.
func Key(name, phone string) string {
	return name + "-" + phone
}

// Store is a set of contact keys. It only grows while a run is active and
// is cleared when a new run starts.
type Store struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
}

func New() *Store {
	return &Store{keys: map[string]struct{}{}}
}

// Add inserts key and reports whether it was not present before.
func (s *Store) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.keys[key]; found {
		return false
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.keys[key]
	return found
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Snapshot returns a copy of all keys in insertion order.
func (s *Store) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]string, len(s.order))
	copy(snapshot, s.order)
	return snapshot
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = map[string]struct{}{}
	s.order = nil
}
