package memory

import (
	"context"
	"sync"
)

// InMemoryStore keeps the persisted document in process. Useful for local
// runs and tests; nothing survives a restart.
type InMemoryStore struct {
	mu    sync.RWMutex
	doc   Snapshot
	saves int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{doc: make(Snapshot)}
}

func (s *InMemoryStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = snapshot.Clone()
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *InMemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *InMemoryStore) Close() error { return nil }
