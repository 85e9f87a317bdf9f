package promotion

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/money"
)

// ErrUnsupportedType is returned for promotion types no rule exists for.
var ErrUnsupportedType = errors.New("unsupported promotion type")

// InvalidPromotionError means an active promotion cannot be turned into a
// rule. It is a configuration fault and fails the whole evaluation.
type InvalidPromotionError struct {
	PromotionID string
	Type        Type
	Err         error
}

func (e *InvalidPromotionError) Error() string {
	return fmt.Sprintf("promotion %s of type %q is misconfigured: %v", e.PromotionID, e.Type, e.Err)
}

func (e *InvalidPromotionError) Unwrap() error { return e.Err }

// Rule is the evaluation form of a promotion. The set of implementations is
// closed: rules are only obtained through NewRule.
type Rule interface {
	Promotion() Promotion
	// Applicable reports whether Apply could change c.
	Applicable(c Context) bool
	// Apply returns c with this rule's discount added. The input is left
	// untouched.
	Apply(c Context) Context

	rule()
}

// NewRule maps a promotion to its rule.
func NewRule(p Promotion) (Rule, error) {
	var r Rule
	switch p.Type {
	case TypePercentOffCategory:
		r = percentOffCategory{promo: p}
	case TypeBuyXGetY:
		r = buyXGetY{promo: p}
	default:
		return nil, &InvalidPromotionError{PromotionID: p.ID, Type: p.Type, Err: ErrUnsupportedType}
	}
	if err := p.Validate(); err != nil {
		return nil, &InvalidPromotionError{PromotionID: p.ID, Type: p.Type, Err: err}
	}
	return r, nil
}

type percentOffCategory struct {
	promo Promotion
}

func (percentOffCategory) rule() {}

func (r percentOffCategory) Promotion() Promotion { return r.promo }

func (r percentOffCategory) Applicable(c Context) bool {
	if !r.promo.DiscountFraction.Valid || r.promo.TargetCategory == "" {
		return false
	}
	return slices.ContainsFunc(c.Lines, func(l LineItem) bool {
		return l.Product.Category == r.promo.TargetCategory
	})
}

func (r percentOffCategory) Apply(c Context) Context {
	out := c.clone()
	fraction := r.promo.DiscountFraction.Decimal

	total := decimal.Zero
	for i, l := range out.Lines {
		if l.Product.Category != r.promo.TargetCategory {
			continue
		}
		amount := money.Min(money.Round(l.Subtotal.Mul(fraction)), l.FinalPrice())
		out.Lines[i].Discount = l.Discount.Add(amount)
		total = total.Add(amount)
	}

	if total.IsPositive() {
		out.Applied = append(out.Applied, Applied{
			PromotionID: r.promo.ID,
			Type:        r.promo.Type,
			Description: fmt.Sprintf("%d%% off %s category", fraction.Mul(money.Hundred).IntPart(), r.promo.TargetCategory),
			Amount:      total,
		})
	}
	return out
}

type buyXGetY struct {
	promo Promotion
}

func (buyXGetY) rule() {}

func (r buyXGetY) Promotion() Promotion { return r.promo }

func (r buyXGetY) Applicable(c Context) bool {
	if r.promo.TargetProductID == "" || r.promo.BuyQuantity < 1 || r.promo.GetQuantity < 1 {
		return false
	}
	i := r.target(c)
	return i >= 0 && c.Lines[i].Quantity >= r.promo.BuyQuantity
}

func (r buyXGetY) Apply(c Context) Context {
	i := r.target(c)
	if i < 0 {
		return c
	}
	line := c.Lines[i]

	freeSets := line.Quantity / (r.promo.BuyQuantity + r.promo.GetQuantity)
	freeUnits := freeSets * r.promo.GetQuantity
	if freeUnits == 0 {
		return c
	}

	amount := line.Product.Price.Mul(decimal.NewFromInt(int64(freeUnits)))
	amount = money.Min(amount, line.FinalPrice())
	if !amount.IsPositive() {
		return c
	}

	out := c.clone()
	out.Lines[i].Discount = line.Discount.Add(amount)
	out.Applied = append(out.Applied, Applied{
		PromotionID: r.promo.ID,
		Type:        r.promo.Type,
		Description: fmt.Sprintf("Buy %d get %d free (%d free items)", r.promo.BuyQuantity, r.promo.GetQuantity, freeUnits),
		Amount:      amount,
	})
	return out
}

// target returns the index of the line for the promoted product, or -1.
func (r buyXGetY) target(c Context) int {
	return slices.IndexFunc(c.Lines, func(l LineItem) bool {
		return l.Product.ID == r.promo.TargetProductID
	})
}
