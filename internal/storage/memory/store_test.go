package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

// --- Helpers ---

func newTestProduct(id string, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     "Product " + id,
		Category: product.CategoryGeneral,
		Price:    decimal.RequireFromString("10.00"),
		Stock:    stock,
	}
}

func newSeededStore(t *testing.T, products ...product.Product) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Products().Create(context.Background(), products))
	return s
}

// --- Tests ---

func TestWithinTx_CommitsAllWrites(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t, newTestProduct("a", 5))

	err := s.WithinTx(ctx, func(ctx context.Context, tx cart.Tx) error {
		p, err := tx.LockProduct(ctx, "a")
		require.NoError(t, err)
		p.Stock = 3
		require.NoError(t, tx.SaveProducts(ctx, []product.Product{*p}))
		return tx.CreateOrder(ctx, &order.Order{ID: "o1", IdempotencyKey: "k1"})
	})
	require.NoError(t, err)

	p, err := s.Products().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, int64(1), p.Version)

	o, err := s.Orders().GetByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t, newTestProduct("a", 5))
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx cart.Tx) error {
		p, err := tx.LockProduct(ctx, "a")
		require.NoError(t, err)
		p.Stock = 0
		require.NoError(t, tx.SaveProducts(ctx, []product.Product{*p}))
		require.NoError(t, tx.CreateOrder(ctx, &order.Order{ID: "o1", IdempotencyKey: "k1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.Products().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, int64(0), p.Version)

	_, err = s.Orders().GetByIdempotencyKey(ctx, "k1")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestLockProduct_MissingTakesNoHold(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithinTx(ctx, func(ctx context.Context, tx cart.Tx) error {
		_, err := tx.LockProduct(ctx, "ghost")
		return err
	})
	require.ErrorIs(t, err, product.ErrNotFound)

	// The semaphore must be free again.
	h := s.hold("ghost")
	assert.Empty(t, h)
}

func TestLockProduct_BlocksUntilReleased(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t, newTestProduct("a", 5))

	locked := make(chan struct{})
	unlock := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(ctx context.Context, tx cart.Tx) error {
			if _, err := tx.LockProduct(ctx, "a"); err != nil {
				return err
			}
			close(locked)
			<-unlock
			return nil
		})
	}()
	<-locked

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := s.WithinTx(waitCtx, func(ctx context.Context, tx cart.Tx) error {
		_, err := tx.LockProduct(ctx, "a")
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Readers are never blocked by holds.
	_, err = s.Products().GetByID(ctx, "a")
	require.NoError(t, err)

	close(unlock)
	require.NoError(t, <-done)

	err = s.WithinTx(ctx, func(ctx context.Context, tx cart.Tx) error {
		_, err := tx.LockProduct(ctx, "a")
		return err
	})
	require.NoError(t, err)
}

func TestSaveProducts_RequiresHold(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t, newTestProduct("a", 5))

	err := s.WithinTx(ctx, func(ctx context.Context, tx cart.Tx) error {
		return tx.SaveProducts(ctx, []product.Product{newTestProduct("a", 1)})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not held")
}

func TestCommit_DuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t, newTestProduct("a", 5), newTestProduct("b", 5))

	create := func(orderID, productID string) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx cart.Tx) error {
			p, err := tx.LockProduct(ctx, productID)
			if err != nil {
				return err
			}
			p.Stock--
			if err := tx.SaveProducts(ctx, []product.Product{*p}); err != nil {
				return err
			}
			return tx.CreateOrder(ctx, &order.Order{ID: orderID, IdempotencyKey: "same"})
		})
	}

	require.NoError(t, create("o1", "a"))
	require.ErrorIs(t, create("o2", "b"), order.ErrDuplicateIdempotencyKey)

	b, err := s.Products().GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 5, b.Stock, "losing transaction must not reserve stock")
}

func TestProductUpdate_Version(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t, newTestProduct("a", 5))
	repo := s.Products()

	p, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	stale := *p

	p.Name = "Renamed"
	require.NoError(t, repo.Update(ctx, p))
	assert.Equal(t, int64(1), p.Version)

	stale.Name = "Lost update"
	require.ErrorIs(t, repo.Update(ctx, &stale), product.ErrVersionConflict)

	missing := newTestProduct("zzz", 1)
	require.ErrorIs(t, repo.Update(ctx, &missing), product.ErrNotFound)
}

func TestProductCreate_RejectsExisting(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t, newTestProduct("a", 5))

	err := s.Products().Create(ctx, []product.Product{newTestProduct("b", 1), newTestProduct("a", 1)})
	require.ErrorIs(t, err, product.ErrAlreadyExists)

	_, err = s.Products().GetByID(ctx, "b")
	assert.ErrorIs(t, err, product.ErrNotFound, "batch create is all or nothing")
}

func TestProductDelete(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t, newTestProduct("a", 5))

	require.NoError(t, s.Products().Delete(ctx, "a"))
	require.ErrorIs(t, s.Products().Delete(ctx, "a"), product.ErrNotFound)
}

func TestPromotions_ListActiveOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Promotions()

	require.NoError(t, repo.Create(ctx, []promotion.Promotion{
		{ID: "late", Priority: 20, Active: true},
		{ID: "first-tie", Priority: 10, Active: true},
		{ID: "inactive", Priority: 0, Active: false},
		{ID: "second-tie", Priority: 10, Active: true},
	}))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)

	ids := make([]string, len(active))
	for i, p := range active {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"first-tie", "second-tie", "late"}, ids)

	require.NoError(t, repo.SetActive(ctx, "inactive", true))
	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "inactive", active[0].ID)

	require.ErrorIs(t, repo.SetActive(ctx, "missing", true), promotion.ErrNotFound)
}
