package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository on a Store.
type PromotionRepository struct {
	s *Store
}

// ListActive returns active promotions by ascending priority, oldest first
// within a priority.
func (r *PromotionRepository) ListActive(_ context.Context) ([]promotion.Promotion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []promotion.Promotion
	for _, p := range r.s.promotions {
		if p.Active {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b promotion.Promotion) int { return cmp.Compare(a.Priority, b.Priority) })
	return out, nil
}

// List returns every promotion in creation order.
func (r *PromotionRepository) List(_ context.Context) ([]promotion.Promotion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return slices.Clone(r.s.promotions), nil
}

// Create appends promotions. CreatedAt is stamped when unset.
func (r *PromotionRepository) Create(_ context.Context, promos []promotion.Promotion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i, p := range promos {
		sameID := func(other promotion.Promotion) bool { return other.ID == p.ID }
		if slices.ContainsFunc(r.s.promotions, sameID) || slices.ContainsFunc(promos[:i], sameID) {
			return errors.Wrapf(promotion.ErrAlreadyExists, "create promotion %s", p.ID)
		}
	}
	for _, p := range promos {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = r.s.now().UTC()
		}
		r.s.promotions = append(r.s.promotions, p)
	}
	return nil
}

// SetActive toggles a promotion.
func (r *PromotionRepository) SetActive(_ context.Context, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	i := slices.IndexFunc(r.s.promotions, func(p promotion.Promotion) bool { return p.ID == id })
	if i < 0 {
		return promotion.ErrNotFound
	}
	r.s.promotions[i].Active = active
	return nil
}

