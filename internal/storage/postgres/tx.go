package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
)

var _ cart.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs confirmation workflows in a read committed transaction.
// Product holds are row locks taken with SELECT ... FOR UPDATE and released on
// commit or rollback.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork that uses the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// WithinTx implements cart.UnitOfWork.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx cart.Tx) error) error {
	pgTx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// Rollback is a no-op after a successful commit.
	defer func() { _ = pgTx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		if isUniqueViolation(err, idempotencyKeyConstraint) {
			return order.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) LockProduct(ctx context.Context, id string) (*product.Product, error) {
	return getProduct(ctx, t.tx, lockProductSQL, id)
}

func (t *tx) SaveProducts(ctx context.Context, products []product.Product) error {
	b := &pgx.Batch{}
	for _, p := range products {
		b.Queue(saveProductSQL, p.ID, p.Name, string(p.Category), p.Price, p.Stock)
	}

	br := t.tx.SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	for _, p := range products {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("saving product %q: %w", p.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return product.ErrNotFound
		}
	}
	return br.Close()
}

func (t *tx) OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return getOrder(ctx, t.tx, getOrderByKeySQL, key)
}

func (t *tx) CreateOrder(ctx context.Context, o *order.Order) error {
	return insertOrder(ctx, t.tx, o)
}
