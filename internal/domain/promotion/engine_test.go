package promotion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-quoter/internal/domain/customer"
	"github.com/xenking/promo-quoter/internal/domain/product"
)

// --- Helpers ---

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func frac(v string) decimal.NullDecimal { return decimal.NewNullDecimal(d(v)) }

func newTestProduct(id string, category product.Category, price string) product.Product {
	return product.Product{
		ID:       id,
		Name:     "Product " + id,
		Category: category,
		Price:    d(price),
		Stock:    100,
	}
}

func percentOff(id string, category product.Category, fraction string, priority int) Promotion {
	return Promotion{
		ID:               id,
		Type:             TypePercentOffCategory,
		TargetCategory:   category,
		DiscountFraction: frac(fraction),
		Priority:         priority,
		Active:           true,
	}
}

func buyGet(id, productID string, buy, get, priority int) Promotion {
	return Promotion{
		ID:              id,
		Type:            TypeBuyXGetY,
		TargetProductID: productID,
		BuyQuantity:     buy,
		GetQuantity:     get,
		Priority:        priority,
		Active:          true,
	}
}

func cartOf(lines ...LineItem) Context {
	return NewContext(customer.SegmentRegular, lines)
}

// --- Tests ---

func TestApply_NoPromotions(t *testing.T) {
	c := cartOf(NewLineItem(newTestProduct("p1", product.CategoryBooks, "12.50"), 2))

	out, err := Apply(c, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Applied)
	assert.True(t, d("25.00").Equal(out.Subtotal()))
	assert.True(t, decimal.Zero.Equal(out.TotalDiscount()))
	assert.True(t, d("25.00").Equal(out.FinalTotal()))
}

func TestApply_PercentOffCategory(t *testing.T) {
	laptop := newTestProduct("laptop", product.CategoryElectronics, "100.00")
	shirt := newTestProduct("shirt", product.CategoryClothing, "20.00")
	c := cartOf(NewLineItem(laptop, 1), NewLineItem(shirt, 2))

	out, err := Apply(c, []Promotion{percentOff("promo-1", product.CategoryElectronics, "0.10", 1)})
	require.NoError(t, err)

	require.Len(t, out.Applied, 1)
	assert.Equal(t, "promo-1", out.Applied[0].PromotionID)
	assert.Equal(t, TypePercentOffCategory, out.Applied[0].Type)
	assert.Equal(t, "10% off ELECTRONICS category", out.Applied[0].Description)
	assert.True(t, d("10.00").Equal(out.Applied[0].Amount))

	assert.True(t, d("10.00").Equal(out.Lines[0].Discount))
	assert.True(t, decimal.Zero.Equal(out.Lines[1].Discount))
	assert.True(t, d("130.00").Equal(out.FinalTotal()))
}

func TestApply_StackingUsesSubtotal(t *testing.T) {
	laptop := newTestProduct("laptop", product.CategoryElectronics, "100.00")
	c := cartOf(NewLineItem(laptop, 1))

	out, err := Apply(c, []Promotion{
		percentOff("ten", product.CategoryElectronics, "0.10", 1),
		percentOff("twenty", product.CategoryElectronics, "0.20", 2),
	})
	require.NoError(t, err)

	require.Len(t, out.Applied, 2)
	assert.True(t, d("30.00").Equal(out.TotalDiscount()))
	assert.True(t, d("70.00").Equal(out.FinalTotal()))
}

func TestApply_RoundsHalfUp(t *testing.T) {
	book := newTestProduct("book", product.CategoryBooks, "10.00")
	third := decimal.NewFromInt(1).Div(decimal.NewFromInt(3))
	promo := percentOff("third", product.CategoryBooks, "0", 1)
	promo.DiscountFraction = decimal.NewNullDecimal(third)

	out, err := Apply(cartOf(NewLineItem(book, 1)), []Promotion{promo})
	require.NoError(t, err)

	require.Len(t, out.Applied, 1)
	assert.True(t, d("3.33").Equal(out.Applied[0].Amount), "got %s", out.Applied[0].Amount)
	assert.Equal(t, "33% off BOOKS category", out.Applied[0].Description)
}

func TestApply_BuyXGetY(t *testing.T) {
	tests := []struct {
		name       string
		qty        int
		wantFree   int
		wantAmount string
	}{
		{name: "below buy quantity", qty: 2, wantFree: 0},
		{name: "exactly buy quantity", qty: 3, wantFree: 0},
		{name: "one full set", qty: 4, wantFree: 1, wantAmount: "5.00"},
		{name: "partial second set", qty: 7, wantFree: 1, wantAmount: "5.00"},
		{name: "two full sets", qty: 8, wantFree: 2, wantAmount: "10.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pen := newTestProduct("pen", product.CategoryGeneral, "5.00")

			out, err := Apply(cartOf(NewLineItem(pen, tt.qty)), []Promotion{buyGet("b3g1", "pen", 3, 1, 1)})
			require.NoError(t, err)

			if tt.wantFree == 0 {
				assert.Empty(t, out.Applied)
				assert.True(t, decimal.Zero.Equal(out.Lines[0].Discount))
				return
			}
			require.Len(t, out.Applied, 1)
			assert.True(t, d(tt.wantAmount).Equal(out.Applied[0].Amount))
			assert.Equal(t, tt.qty, out.Lines[0].Quantity, "quantities are never changed")
			assert.Contains(t, out.Applied[0].Description, "Buy 3 get 1 free")
		})
	}
}

func TestApply_BuyXGetYDescription(t *testing.T) {
	pen := newTestProduct("pen", product.CategoryGeneral, "2.00")

	out, err := Apply(cartOf(NewLineItem(pen, 6)), []Promotion{buyGet("b2g1", "pen", 2, 1, 1)})
	require.NoError(t, err)

	require.Len(t, out.Applied, 1)
	assert.Equal(t, "Buy 2 get 1 free (2 free items)", out.Applied[0].Description)
	assert.True(t, d("4.00").Equal(out.Applied[0].Amount))
}

func TestApply_NotApplicable(t *testing.T) {
	shirt := newTestProduct("shirt", product.CategoryClothing, "20.00")

	out, err := Apply(cartOf(NewLineItem(shirt, 5)), []Promotion{
		percentOff("elec", product.CategoryElectronics, "0.50", 1),
		buyGet("other", "pen", 1, 1, 2),
	})
	require.NoError(t, err)
	assert.Empty(t, out.Applied)
	assert.True(t, d("100.00").Equal(out.FinalTotal()))
}

func TestApply_PriorityOrder(t *testing.T) {
	laptop := newTestProduct("laptop", product.CategoryElectronics, "100.00")
	pen := newTestProduct("pen", product.CategoryGeneral, "1.00")
	c := cartOf(NewLineItem(laptop, 1), NewLineItem(pen, 2))

	out, err := Apply(c, []Promotion{
		percentOff("late", product.CategoryElectronics, "0.05", 50),
		buyGet("tie-first", "pen", 1, 1, 10),
		percentOff("tie-second", product.CategoryElectronics, "0.10", 10),
		percentOff("early", product.CategoryElectronics, "0.01", 0),
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(out.Applied))
	for _, a := range out.Applied {
		ids = append(ids, a.PromotionID)
	}
	assert.Equal(t, []string{"early", "tie-first", "tie-second", "late"}, ids)
}

func TestApply_DiscountNeverExceedsSubtotal(t *testing.T) {
	book := newTestProduct("book", product.CategoryBooks, "10.00")
	c := cartOf(NewLineItem(book, 2))

	out, err := Apply(c, []Promotion{
		percentOff("sixty", product.CategoryBooks, "0.60", 1),
		percentOff("sixty-again", product.CategoryBooks, "0.60", 2),
		buyGet("b1g1", "book", 1, 1, 3),
	})
	require.NoError(t, err)

	require.Len(t, out.Applied, 2, "the last rule has nothing left to discount")
	assert.True(t, d("12.00").Equal(out.Applied[0].Amount))
	assert.True(t, d("8.00").Equal(out.Applied[1].Amount))
	assert.True(t, d("20.00").Equal(out.Lines[0].Discount))
	assert.True(t, decimal.Zero.Equal(out.Lines[0].FinalPrice()))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	laptop := newTestProduct("laptop", product.CategoryElectronics, "100.00")
	c := cartOf(NewLineItem(laptop, 1))

	_, err := Apply(c, []Promotion{percentOff("ten", product.CategoryElectronics, "0.10", 1)})
	require.NoError(t, err)

	assert.True(t, decimal.Zero.Equal(c.Lines[0].Discount))
	assert.Empty(t, c.Applied)
}

func TestApply_ZeroFractionAppendsNothing(t *testing.T) {
	laptop := newTestProduct("laptop", product.CategoryElectronics, "100.00")

	out, err := Apply(cartOf(NewLineItem(laptop, 1)), []Promotion{percentOff("zero", product.CategoryElectronics, "0", 1)})
	require.NoError(t, err)
	assert.Empty(t, out.Applied)
}

func TestApply_InvalidPromotion(t *testing.T) {
	laptop := newTestProduct("laptop", product.CategoryElectronics, "100.00")
	c := cartOf(NewLineItem(laptop, 1))

	t.Run("unsupported type", func(t *testing.T) {
		promo := Promotion{ID: "bulk", Type: "BULK_DISCOUNT", Priority: 1, Active: true}

		_, err := Apply(c, []Promotion{percentOff("ok", product.CategoryElectronics, "0.10", 1), promo})

		var ipErr *InvalidPromotionError
		require.ErrorAs(t, err, &ipErr)
		assert.Equal(t, "bulk", ipErr.PromotionID)
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("missing fields", func(t *testing.T) {
		promo := percentOff("broken", product.CategoryElectronics, "0.10", 1)
		promo.DiscountFraction = decimal.NullDecimal{}

		_, err := Apply(c, []Promotion{promo})

		var ipErr *InvalidPromotionError
		require.ErrorAs(t, err, &ipErr)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Problems, "discount fraction is required")
	})
}
