package promotion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-quoter/internal/domain/product"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		promo Promotion
		want  string
	}{
		{
			name:  "valid percent off",
			promo: percentOff("p", product.CategoryBooks, "0.25", 1),
		},
		{
			name:  "valid buy x get y",
			promo: buyGet("p", "book", 2, 1, 1),
		},
		{
			name:  "fraction above one",
			promo: percentOff("p", product.CategoryBooks, "1.5", 1),
			want:  "discount fraction must be between 0 and 1",
		},
		{
			name:  "unknown category",
			promo: percentOff("p", "TOYS", "0.10", 1),
			want:  "a valid target category is required",
		},
		{
			name: "percent off with product target",
			promo: func() Promotion {
				p := percentOff("p", product.CategoryBooks, "0.10", 1)
				p.TargetProductID = "book"
				return p
			}(),
			want: "product target and quantities are not allowed",
		},
		{
			name:  "buy quantity zero",
			promo: buyGet("p", "book", 0, 1, 1),
			want:  "buy quantity must be at least 1",
		},
		{
			name:  "missing target product",
			promo: buyGet("p", "", 1, 1, 1),
			want:  "target product is required",
		},
		{
			name: "buy x get y with fraction",
			promo: func() Promotion {
				p := buyGet("p", "book", 1, 1, 1)
				p.DiscountFraction = decimal.NewNullDecimal(decimal.NewFromInt(1))
				return p
			}(),
			want: "category target and discount fraction are not allowed",
		},
		{
			name:  "negative priority",
			promo: buyGet("p", "book", 1, 1, -1),
			want:  "priority must not be negative",
		},
		{
			name:  "unknown type",
			promo: Promotion{ID: "p", Type: "BULK_DISCOUNT"},
			want:  `unsupported type "BULK_DISCOUNT"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.promo.Validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.Problems, tt.want)
		})
	}
}

func TestNewRule(t *testing.T) {
	r, err := NewRule(percentOff("a", product.CategoryBooks, "0.10", 3))
	require.NoError(t, err)
	assert.Equal(t, "a", r.Promotion().ID)
	assert.Equal(t, 3, r.Promotion().Priority)

	r, err = NewRule(buyGet("b", "book", 1, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, TypeBuyXGetY, r.Promotion().Type)
}
