package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/customer"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateIdempotencyKey is returned when an order with the same
	// idempotency key was stored concurrently.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// Order is a confirmed purchase. Orders are written once and never change.
// IdempotencyKey is empty when the client did not send one.
type Order struct {
	ID             string             `json:"id"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	Total          decimal.Decimal    `json:"total"`
	Segment        customer.Segment   `json:"customer_segment"`
	CreatedAt      time.Time          `json:"created_at"`
	Items          []Item             `json:"items"`
	Promotions     []AppliedPromotion `json:"applied_promotions"`
}

// Item is one purchased line, priced after discounts.
type Item struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Subtotal is the undiscounted price of the line.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Discount is the amount taken off the line.
func (i Item) Discount() decimal.Decimal {
	return i.Subtotal().Sub(i.TotalPrice)
}

// AppliedPromotion is the snapshot of a promotion's contribution at
// confirmation time.
type AppliedPromotion struct {
	PromotionID string          `json:"promotion_id"`
	Type        promotion.Type  `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Repository defines read access to stored orders. Orders are written through
// the confirmation unit of work.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)
}
