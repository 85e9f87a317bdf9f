package memory

import (
	"context"
	"slices"

	"github.com/xenking/promo-quoter/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on a Store.
type OrderRepository struct {
	s *Store
}

// GetByID returns an order by ID.
func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

// GetByIdempotencyKey returns the order created with key.
func (r *OrderRepository) GetByIdempotencyKey(_ context.Context, key string) (*order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.s.orderByKeyLocked(key)
}

func (s *Store) orderByKeyLocked(key string) (*order.Order, error) {
	id, ok := s.orderByKey[key]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

func cloneOrder(o order.Order) *order.Order {
	o.Items = slices.Clone(o.Items)
	o.Promotions = slices.Clone(o.Promotions)
	return &o
}

