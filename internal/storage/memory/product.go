package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-quoter/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository on a Store.
type ProductRepository struct {
	s *Store
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetByID returns a single product.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Create inserts products. It fails without writing anything if any id is
// already taken.
func (r *ProductRepository) Create(_ context.Context, products []product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		_, taken := r.s.products[p.ID]
		_, dup := seen[p.ID]
		if taken || dup {
			return errors.Wrapf(product.ErrAlreadyExists, "create product %s", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	for _, p := range products {
		p.Version = 0
		r.s.products[p.ID] = p
	}
	return nil
}

// Update writes p when its version matches. It waits for any confirmation
// holding the product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	h := r.s.hold(p.ID)
	if err := acquire(ctx, h); err != nil {
		return err
	}
	defer release(h)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.products[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	if current.Version != p.Version {
		return product.ErrVersionConflict
	}
	p.Version++
	r.s.products[p.ID] = *p
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	h := r.s.hold(id)
	if err := acquire(ctx, h); err != nil {
		return err
	}
	defer release(h)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

