package cart

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/customer"
	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

// Sentinel errors for request validation.
var (
	ErrEmptyItems        = errors.New("at least one item is required")
	ErrMissingProductID  = errors.New("product id is required")
	ErrIdempotencyKeyLen = errors.New("idempotency key must be at most 255 characters")
)

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %s, got %d", e.ProductID, e.Quantity)
}

// DuplicateProductError indicates a product listed on more than one line.
type DuplicateProductError struct {
	ProductID string
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("product %s appears on more than one line", e.ProductID)
}

// ProductsNotFoundError lists every requested product that does not exist.
type ProductsNotFoundError struct {
	ProductIDs []string
}

func (e *ProductsNotFoundError) Error() string {
	return fmt.Sprintf("products not found: %s", strings.Join(e.ProductIDs, ", "))
}

// InsufficientStockError indicates a line asks for more units than are
// available.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): available %d, requested %d",
		e.ProductName, e.ProductID, e.Available, e.Requested)
}

// Item is one requested cart line.
type Item struct {
	ProductID string
	Quantity  int
}

// Request is the input of both quoting and confirmation.
type Request struct {
	Items   []Item
	Segment customer.Segment
}

// Validate checks the request shape before any storage access.
func (r Request) Validate() error {
	if len(r.Items) == 0 {
		return ErrEmptyItems
	}
	if !r.Segment.Valid() {
		return errors.Wrapf(customer.ErrInvalidSegment, "%q", r.Segment)
	}

	seen := make(map[string]struct{}, len(r.Items))
	for _, item := range r.Items {
		if item.ProductID == "" {
			return ErrMissingProductID
		}
		if item.Quantity < 1 {
			return &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		if _, ok := seen[item.ProductID]; ok {
			return &DuplicateProductError{ProductID: item.ProductID}
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// productIDs returns the requested ids in request order.
func (r Request) productIDs() []string {
	ids := make([]string, len(r.Items))
	for i, item := range r.Items {
		ids[i] = item.ProductID
	}
	return ids
}

// Line is one priced cart line.
type Line struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	FinalPrice  decimal.Decimal
}

// Quote is the priced view of a cart.
type Quote struct {
	Lines         []Line
	Applied       []promotion.Applied
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	FinalTotal    decimal.Decimal
}

// Confirmation is the result of a confirmed cart.
type Confirmation struct {
	OrderID string
	Quote
	// Replayed is set when the order was created by an earlier request with
	// the same idempotency key.
	Replayed bool
}

func quoteFromContext(c promotion.Context) Quote {
	lines := make([]Line, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = Line{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			Quantity:    l.Quantity,
			UnitPrice:   l.Product.Price,
			Subtotal:    l.Subtotal,
			Discount:    l.Discount,
			FinalPrice:  l.FinalPrice(),
		}
	}
	return Quote{
		Lines:         lines,
		Applied:       append([]promotion.Applied(nil), c.Applied...),
		Subtotal:      c.Subtotal(),
		TotalDiscount: c.TotalDiscount(),
		FinalTotal:    c.FinalTotal(),
	}
}

// confirmationFromOrder projects a stored order back into the response shape.
// Both fresh and replayed confirmations go through it so the two are
// indistinguishable.
func confirmationFromOrder(o *order.Order) Confirmation {
	q := Quote{
		Lines:         make([]Line, len(o.Items)),
		Applied:       make([]promotion.Applied, len(o.Promotions)),
		Subtotal:      decimal.Zero,
		TotalDiscount: decimal.Zero,
	}
	for i, item := range o.Items {
		q.Lines[i] = Line{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal(),
			Discount:    item.Discount(),
			FinalPrice:  item.TotalPrice,
		}
		q.Subtotal = q.Subtotal.Add(item.Subtotal())
		q.TotalDiscount = q.TotalDiscount.Add(item.Discount())
	}
	q.FinalTotal = o.Total
	for i, a := range o.Promotions {
		q.Applied[i] = promotion.Applied{
			PromotionID: a.PromotionID,
			Type:        a.Type,
			Description: a.Description,
			Amount:      a.Amount,
		}
	}
	return Confirmation{OrderID: o.ID, Quote: q}
}
