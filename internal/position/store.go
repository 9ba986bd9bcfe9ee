package position

import (
	"context"
	"sync"
)

// Store persists position state and the per-position audit trail.
type Store interface {
	SavePosition(ctx context.Context, p Position) error
	AppendUpdate(ctx context.Context, u Update) error
}

// MemoryStore is an in-process Store for tests and paper trading.
type MemoryStore struct {
	mu        sync.Mutex
	Positions map[string]Position
	Updates   []Update
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Positions: make(map[string]Position)}
}

func (s *MemoryStore) SavePosition(_ context.Context, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Positions[p.ID] = p
	return nil
}

func (s *MemoryStore) AppendUpdate(_ context.Context, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updates = append(s.Updates, u)
	return nil
}
