package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

// Store is a process-local OrderStore with the same version semantics as
// the Postgres repository.
type Store struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewStore() *Store {
	return &Store{orders: make(map[string]domain.Order)}
}

func (s *Store) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return domain.Order{}, fmt.Errorf("order %s already exists", o.ID)
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1
	s.orders[o.ID] = o
	return o, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *Store) Update(ctx context.Context, o domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[o.ID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if current.Version != o.Version {
		return domain.Order{}, domain.ErrConflict
	}
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	s.orders[o.ID] = o
	return o, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}
