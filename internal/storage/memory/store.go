// Package memory is an in-process implementation of the catalog, promotion,
// order and API key stores. It backs local runs without PostgreSQL and gives
// the confirmation workflow the same isolation guarantees: per-product
// exclusive holds and all-or-nothing commits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/promo-quoter/internal/domain/auth"
	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

var _ cart.UnitOfWork = (*Store)(nil)

// Store keeps all data in maps guarded by mu. Product holds are separate
// one-slot semaphores so a held product never blocks readers.
type Store struct {
	mu         sync.RWMutex
	products   map[string]product.Product
	promotions []promotion.Promotion
	orders     map[string]order.Order
	orderByKey map[string]string
	apiKeys    map[string]auth.APIKeyInfo

	holdsMu sync.Mutex
	holds   map[string]chan struct{}

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		products:   make(map[string]product.Product),
		orders:     make(map[string]order.Order),
		orderByKey: make(map[string]string),
		apiKeys:    make(map[string]auth.APIKeyInfo),
		holds:      make(map[string]chan struct{}),
		now:        time.Now,
	}
}

// hold returns the semaphore guarding product id.
func (s *Store) hold(id string) chan struct{} {
	s.holdsMu.Lock()
	defer s.holdsMu.Unlock()

	h, ok := s.holds[id]
	if !ok {
		h = make(chan struct{}, 1)
		s.holds[id] = h
	}
	return h
}

func acquire(ctx context.Context, h chan struct{}) error {
	select {
	case h <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release(h chan struct{}) { <-h }

// Products returns the catalog view of the store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Promotions returns the promotion view of the store.
func (s *Store) Promotions() *PromotionRepository { return &PromotionRepository{s: s} }

// Orders returns the order view of the store.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// APIKeys returns the API key view of the store.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }
