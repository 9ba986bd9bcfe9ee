package order

import (
	"context"
	"sync"
)

// Store persists order state. Save must write the new state and the
// transition record in one atomic unit; a record is never durable
// without its state update.
type Store interface {
	Create(ctx context.Context, o *ManagedOrder) error
	SaveTransition(ctx context.Context, o *ManagedOrder, rec TransitionRecord) error
	SaveFill(ctx context.Context, o *ManagedOrder) error
	ListOpen(ctx context.Context) ([]*ManagedOrder, error)
}

// MemoryStore is an in-process Store used by tests and paper trading.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*ManagedOrder
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*ManagedOrder)}
}

func (s *MemoryStore) Create(_ context.Context, o *ManagedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) SaveTransition(_ context.Context, o *ManagedOrder, _ TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) SaveFill(_ context.Context, o *ManagedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) ListOpen(_ context.Context) ([]*ManagedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ManagedOrder, 0, len(s.orders))
	for _, o := range s.orders {
		if !o.State.IsTerminal() {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}
