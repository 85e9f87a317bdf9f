// Package money holds the rounding rules shared by every monetary amount in
// the service. All amounts are shopspring decimals; nothing is ever stored or
// computed as a float.
package money

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits kept on monetary amounts.
const Scale = 2

// Hundred is used to convert between fractions and percentages.
var Hundred = decimal.NewFromInt(100)

// Round rounds d half-up to Scale fractional digits. Amounts are never
// negative here, so decimal's half-away-from-zero mode is half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Sum adds amounts together; the sum of nothing is zero.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
