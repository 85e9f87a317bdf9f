package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
)

// WithinTx runs fn with a transaction whose writes are staged and applied
// atomically when fn succeeds. Holds are released on return.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx cart.Tx) error) error {
	t := &tx{
		s:        s,
		held:     make(map[string]chan struct{}),
		products: make(map[string]product.Product),
	}
	defer t.releaseAll()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

type tx struct {
	s    *Store
	held map[string]chan struct{}

	products map[string]product.Product
	orders   []order.Order
}

var _ cart.Tx = (*tx)(nil)

func (t *tx) LockProduct(ctx context.Context, id string) (*product.Product, error) {
	if _, ok := t.held[id]; ok {
		return t.snapshot(id)
	}

	h := t.s.hold(id)
	if err := acquire(ctx, h); err != nil {
		return nil, err
	}
	p, err := t.snapshot(id)
	if err != nil {
		release(h)
		return nil, err
	}
	t.held[id] = h
	return p, nil
}

// snapshot returns the staged version of a product, falling back to the
// committed one.
func (t *tx) snapshot(id string) (*product.Product, error) {
	if p, ok := t.products[id]; ok {
		return &p, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	p, ok := t.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (t *tx) SaveProducts(_ context.Context, products []product.Product) error {
	for _, p := range products {
		if _, ok := t.held[p.ID]; !ok {
			return errors.Errorf("product %s is not held by this transaction", p.ID)
		}
	}
	for _, p := range products {
		t.products[p.ID] = p
	}
	return nil
}

func (t *tx) OrderByIdempotencyKey(_ context.Context, key string) (*order.Order, error) {
	for _, o := range t.orders {
		if o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	return t.s.orderByKeyLocked(key)
}

func (t *tx) CreateOrder(_ context.Context, o *order.Order) error {
	if o.IdempotencyKey != "" {
		for _, staged := range t.orders {
			if staged.IdempotencyKey == o.IdempotencyKey {
				return order.ErrDuplicateIdempotencyKey
			}
		}
	}
	t.orders = append(t.orders, *cloneOrder(*o))
	return nil
}

// commit applies staged writes under the store lock. The idempotency key
// uniqueness check happens here so that racing transactions on disjoint
// products still produce a single order per key.
func (t *tx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, o := range t.orders {
		if o.IdempotencyKey == "" {
			continue
		}
		if _, ok := t.s.orderByKey[o.IdempotencyKey]; ok {
			return order.ErrDuplicateIdempotencyKey
		}
	}
	for id := range t.products {
		if _, ok := t.s.products[id]; !ok {
			return errors.Wrapf(product.ErrNotFound, "commit product %s", id)
		}
	}

	for id, p := range t.products {
		p.Version = t.s.products[id].Version + 1
		t.s.products[id] = p
	}
	for _, o := range t.orders {
		t.s.orders[o.ID] = o
		if o.IdempotencyKey != "" {
			t.s.orderByKey[o.IdempotencyKey] = o.ID
		}
	}
	return nil
}

func (t *tx) releaseAll() {
	for id, h := range t.held {
		release(h)
		delete(t.held, id)
	}
}
