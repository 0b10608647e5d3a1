package anchor

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe anchor Store for testing and
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	anchors map[uuid.UUID]*Anchor
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{anchors: make(map[uuid.UUID]*Anchor)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, a *Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.anchors[a.ID] = &cp
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.anchors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}
