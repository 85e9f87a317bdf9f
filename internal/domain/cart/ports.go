package cart

import (
	"context"

	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
)

// UnitOfWork runs fn inside one transaction. Everything fn writes through tx
// is committed together when fn returns nil and discarded otherwise. Product
// holds taken through tx are released when WithinTx returns, on every path.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view used by the confirmation workflow.
type Tx interface {
	// LockProduct takes an exclusive hold on the product and returns its
	// current state. A missing product yields product.ErrNotFound and no hold.
	LockProduct(ctx context.Context, id string) (*product.Product, error)
	// SaveProducts writes the given products as one batch. Each product must
	// be held by this transaction.
	SaveProducts(ctx context.Context, products []product.Product) error
	OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error)
	// CreateOrder stores o. It fails with order.ErrDuplicateIdempotencyKey if
	// another order already carries the same key.
	CreateOrder(ctx context.Context, o *order.Order) error
}

// ReplayCache is a fast path for idempotent replays. The order store stays
// authoritative; a cache miss or failure only costs a database lookup.
type ReplayCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) (*order.Order, error)
	Put(ctx context.Context, o *order.Order) error
}

// Notifier is told about every newly confirmed order.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *order.Order) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*order.Order, error) { return nil, nil }
func (nopCache) Put(context.Context, *order.Order) error           { return nil }

type nopNotifier struct{}

func (nopNotifier) OrderConfirmed(context.Context, *order.Order) error { return nil }
