package promotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/product"
)

// Type tags the rule a promotion is evaluated with.
type Type string

const (
	// TypePercentOffCategory discounts every line of one category by a fraction.
	TypePercentOffCategory Type = "PERCENT_OFF_CATEGORY"
	// TypeBuyXGetY gives units of one product away for every X bought.
	TypeBuyXGetY Type = "BUY_X_GET_Y"
)

// DefaultPriority is used when a promotion is created without one.
const DefaultPriority = 100

var (
	// ErrNotFound is returned when a promotion does not exist.
	ErrNotFound = errors.New("promotion not found")
	// ErrAlreadyExists is returned when creating a promotion whose ID is taken.
	ErrAlreadyExists = errors.New("promotion already exists")
)

// Promotion is a configured discount. Which optional fields are populated
// depends on Type.
type Promotion struct {
	ID   string
	Type Type

	TargetCategory   product.Category
	DiscountFraction decimal.NullDecimal

	TargetProductID string
	BuyQuantity     int
	GetQuantity     int

	// Priority orders evaluation; lower runs first.
	Priority  int
	Active    bool
	CreatedAt time.Time
}

// ValidationError lists the configuration problems of a promotion.
type ValidationError struct {
	PromotionID string
	Problems    []string
}

func (e *ValidationError) Error() string {
	if e.PromotionID == "" {
		return fmt.Sprintf("invalid promotion: %s", strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("invalid promotion %s: %s", e.PromotionID, strings.Join(e.Problems, "; "))
}

// Validate checks that p carries exactly the fields its type needs.
func (p Promotion) Validate() error {
	var problems []string
	if p.Priority < 0 {
		problems = append(problems, "priority must not be negative")
	}

	switch p.Type {
	case TypePercentOffCategory:
		if !p.TargetCategory.Valid() {
			problems = append(problems, "a valid target category is required")
		}
		switch {
		case !p.DiscountFraction.Valid:
			problems = append(problems, "discount fraction is required")
		case p.DiscountFraction.Decimal.IsNegative() || p.DiscountFraction.Decimal.GreaterThan(decimal.NewFromInt(1)):
			problems = append(problems, "discount fraction must be between 0 and 1")
		}
		if p.TargetProductID != "" || p.BuyQuantity != 0 || p.GetQuantity != 0 {
			problems = append(problems, "product target and quantities are not allowed")
		}
	case TypeBuyXGetY:
		if p.TargetProductID == "" {
			problems = append(problems, "target product is required")
		}
		if p.BuyQuantity < 1 {
			problems = append(problems, "buy quantity must be at least 1")
		}
		if p.GetQuantity < 1 {
			problems = append(problems, "get quantity must be at least 1")
		}
		if p.TargetCategory != "" || p.DiscountFraction.Valid {
			problems = append(problems, "category target and discount fraction are not allowed")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported type %q", p.Type))
	}

	if len(problems) > 0 {
		return &ValidationError{PromotionID: p.ID, Problems: problems}
	}
	return nil
}

// Repository defines promotion persistence.
type Repository interface {
	// ListActive returns active promotions ordered by ascending priority.
	ListActive(ctx context.Context) ([]Promotion, error)
	List(ctx context.Context) ([]Promotion, error)
	Create(ctx context.Context, promos []Promotion) error
	SetActive(ctx context.Context, id string, active bool) error
}
