package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind enumerates discount rule types.
type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixedAmount  Kind = "fixed_amount"
	KindFreeShipping Kind = "free_shipping"
)

// Places is the number of decimal places used for currency amounts.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Discount is a single discount rule. Value is ignored for free shipping.
type Discount struct {
	Kind  Kind            `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Percentage builds a percentage discount.
func Percentage(p decimal.Decimal) Discount { return Discount{Kind: KindPercentage, Value: p} }

// FixedAmount builds a fixed amount discount.
func FixedAmount(a decimal.Decimal) Discount { return Discount{Kind: KindFixedAmount, Value: a} }

// FreeShipping builds a discount that waives shipping and keeps item prices.
func FreeShipping() Discount { return Discount{Kind: KindFreeShipping} }

// ParseKind validates a persisted discount kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPercentage, KindFixedAmount, KindFreeShipping:
		return k, nil
	default:
		return "", fmt.Errorf("unknown discount kind %q", s)
	}
}

// Apply returns the final unit price after applying d to original.
// The result is clamped at zero and rounded half-up to cents.
func Apply(original decimal.Decimal, d Discount) decimal.Decimal {
	var final decimal.Decimal
	switch d.Kind {
	case KindPercentage:
		final = original.Mul(hundred.Sub(d.Value)).Div(hundred)
	case KindFixedAmount:
		final = original.Sub(d.Value)
	default:
		final = original
	}
	if final.IsNegative() {
		final = decimal.Zero
	}
	return Round(final)
}

// Round rounds half-up to cents. Amounts handled here are never negative.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Places)
}

// DiscountPercent expresses the reduction from original to final as a percentage
// with two decimals, used for order item snapshots.
func DiscountPercent(original, final decimal.Decimal) decimal.Decimal {
	if !original.IsPositive() || final.GreaterThanOrEqual(original) {
		return decimal.Zero
	}
	return Round(original.Sub(final).Mul(hundred).Div(original))
}

// Format renders an amount with exactly two decimals.
func Format(v decimal.Decimal) string {
	return v.StringFixed(Places)
}
