package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrVersionConflict is returned when an update was based on a stale
	// revision of the product.
	ErrVersionConflict = errors.New("product was modified concurrently")
	// ErrAlreadyExists is returned when creating a product whose ID is taken.
	ErrAlreadyExists = errors.New("product already exists")
)

// Category is the closed set of catalog categories.
type Category string

const (
	CategoryElectronics Category = "ELECTRONICS"
	CategoryClothing    Category = "CLOTHING"
	CategoryBooks       Category = "BOOKS"
	CategoryGeneral     Category = "GENERAL"
	CategoryFood        Category = "FOOD"
	CategorySports      Category = "SPORTS"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryBooks,
	CategoryGeneral,
	CategoryFood,
	CategorySports,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

var minPrice = decimal.RequireFromString("0.01")

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Category Category
	Price    decimal.Decimal
	Stock    int

	// Version is bumped on every write and guards catalog updates that do not
	// hold the product lock.
	Version int64
}

// ValidationError lists the field problems found in a product.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid product: %s", strings.Join(e.Problems, "; "))
}

// Validate checks the catalog invariants of p.
func (p Product) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !p.Category.Valid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", p.Category))
	}
	if p.Price.LessThan(minPrice) {
		problems = append(problems, "price must be at least 0.01")
	}
	if p.Stock < 0 {
		problems = append(problems, "stock must not be negative")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Repository defines catalog persistence.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products that exist among ids, in no particular
	// order. Unknown ids are silently omitted.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, products []Product) error
	// Update writes p if its Version still matches the stored one and bumps
	// the version on success.
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
