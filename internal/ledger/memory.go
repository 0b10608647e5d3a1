package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]*Entry
	order  []*Entry // global insertion order = ascending CreatedAt
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: make(map[string][]*Entry)}
}

// Head implements Store.
func (s *MemoryStore) Head(_ context.Context, scopeKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[scopeKey]
	if len(chain) == 0 {
		return "", nil
	}
	return chain[len(chain)-1].EntryHash, nil
}

// Insert implements Store. The CAS check and the append happen under one
// lock, so at most one of two racing inserts with the same expectedHead
// succeeds.
func (s *MemoryStore) Insert(_ context.Context, e *Entry, expectedHead string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[e.ScopeKey]
	head := ""
	if len(chain) > 0 {
		head = chain[len(chain)-1].EntryHash
	}
	if head != expectedHead {
		return ErrConcurrentAppend
	}

	cp := *e
	s.chains[e.ScopeKey] = append(chain, &cp)
	s.order = append(s.order, &cp)
	return nil
}

// List implements Store. Returned entries are copies; stored records stay
// immutable.
func (s *MemoryStore) List(_ context.Context, scopeKey string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[scopeKey]
	out := make([]*Entry, len(chain))
	for i, e := range chain {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

// ListHashes implements Store.
func (s *MemoryStore) ListHashes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([]string, len(s.order))
	for i, e := range s.order {
		hashes[i] = e.EntryHash
	}
	return hashes, nil
}
