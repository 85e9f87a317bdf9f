package promotion

import (
	"cmp"
	"slices"
)

// Apply evaluates the given active promotions against c and returns the
// resulting context. Rules run in ascending priority; promotions with equal
// priority keep their input order. Discounts of successive rules stack on
// each line's subtotal rather than compounding on the discounted price.
//
// Any promotion that cannot be turned into a rule aborts the evaluation with
// an *InvalidPromotionError.
func Apply(c Context, promos []Promotion) (Context, error) {
	rules := make([]Rule, 0, len(promos))
	for _, p := range promos {
		r, err := NewRule(p)
		if err != nil {
			return c, err
		}
		rules = append(rules, r)
	}

	slices.SortStableFunc(rules, func(a, b Rule) int {
		return cmp.Compare(a.Promotion().Priority, b.Promotion().Priority)
	})

	out := c.clone()
	for _, r := range rules {
		if r.Applicable(out) {
			out = r.Apply(out)
		}
	}
	return out, nil
}
