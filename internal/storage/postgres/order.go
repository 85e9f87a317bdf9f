package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-quoter/internal/domain/customer"
	"github.com/xenking/promo-quoter/internal/domain/order"
)

const (
	orderColumns = `id, idempotency_key, total, customer_segment, applied_promotions, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	listOrderItemsSQL = `SELECT product_id, product_name, quantity, unit_price, total_price
		FROM order_items WHERE order_id = $1 ORDER BY line_no`

	insertOrderSQL = `INSERT INTO orders (id, idempotency_key, total, customer_segment, applied_promotions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	idempotencyKeyConstraint = "orders_idempotency_key_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderByIDSQL, id)
}

// GetByIdempotencyKey returns the order created under key.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderByKeySQL, key)
}

func getOrder(ctx context.Context, q querier, sql, arg string) (*order.Order, error) {
	var (
		o         order.Order
		key       *string
		segment   string
		applied   []byte
		createdAt time.Time
	)
	err := q.QueryRow(ctx, sql, arg).Scan(&o.ID, &key, &o.Total, &segment, &applied, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o.IdempotencyKey = derefString(key)
	o.Segment = customer.Segment(segment)
	o.CreatedAt = createdAt.UTC()
	if err := json.Unmarshal(applied, &o.Promotions); err != nil {
		return nil, fmt.Errorf("decoding applied promotions of order %q: %w", o.ID, err)
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", o.ID, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("scanning items of order %q: %w", o.ID, err)
	}
	return &o, nil
}

func insertOrder(ctx context.Context, q querier, o *order.Order) error {
	promos := o.Promotions
	if promos == nil {
		promos = []order.AppliedPromotion{}
	}
	applied, err := json.Marshal(promos)
	if err != nil {
		return fmt.Errorf("encoding applied promotions: %w", err)
	}

	b := &pgx.Batch{}
	b.Queue(insertOrderSQL, o.ID, nullString(o.IdempotencyKey), o.Total, string(o.Segment), applied, o.CreatedAt)
	for i, it := range o.Items {
		b.Queue(insertOrderItemSQL, o.ID, i+1, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice)
	}

	br := q.SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	if _, err := br.Exec(); err != nil {
		if isUniqueViolation(err, idempotencyKeyConstraint) {
			return order.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}
	for range o.Items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("inserting items of order %q: %w", o.ID, err)
		}
	}
	return br.Close()
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it  order.Item
		qty int32
	)
	err := row.Scan(&it.ProductID, &it.ProductName, &qty, &it.UnitPrice, &it.TotalPrice)
	it.Quantity = int(qty)
	return it, err
}
