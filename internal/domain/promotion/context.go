package promotion

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/customer"
	"github.com/xenking/promo-quoter/internal/domain/product"
)

// LineItem is one cart line under evaluation.
type LineItem struct {
	Product  product.Product
	Quantity int
	// Subtotal is the unit price times quantity.
	Subtotal decimal.Decimal
	// Discount only ever grows and never exceeds Subtotal.
	Discount decimal.Decimal
}

// NewLineItem builds an undiscounted line for qty units of p.
func NewLineItem(p product.Product, qty int) LineItem {
	return LineItem{
		Product:  p,
		Quantity: qty,
		Subtotal: p.Price.Mul(decimal.NewFromInt(int64(qty))),
		Discount: decimal.Zero,
	}
}

// FinalPrice is what the customer pays for the line.
func (l LineItem) FinalPrice() decimal.Decimal {
	return l.Subtotal.Sub(l.Discount)
}

// Applied records the contribution of one promotion.
type Applied struct {
	PromotionID string
	Type        Type
	Description string
	Amount      decimal.Decimal
}

// Context is the accumulator threaded through rule evaluation. Rules never
// modify a Context in place; they return an updated copy.
type Context struct {
	Segment customer.Segment
	Lines   []LineItem
	Applied []Applied
}

// NewContext starts an evaluation with no discounts applied.
func NewContext(segment customer.Segment, lines []LineItem) Context {
	return Context{Segment: segment, Lines: slices.Clone(lines)}
}

func (c Context) clone() Context {
	return Context{
		Segment: c.Segment,
		Lines:   slices.Clone(c.Lines),
		Applied: slices.Clone(c.Applied),
	}
}

// Subtotal is the sum of line subtotals.
func (c Context) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal)
	}
	return total
}

// TotalDiscount is the sum of line discounts.
func (c Context) TotalDiscount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Discount)
	}
	return total
}

// FinalTotal is Subtotal minus TotalDiscount.
func (c Context) FinalTotal() decimal.Decimal {
	return c.Subtotal().Sub(c.TotalDiscount())
}
