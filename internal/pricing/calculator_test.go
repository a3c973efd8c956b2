package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApply(t *testing.T) {
	cases := []struct {
		name     string
		original string
		discount Discount
		want     string
	}{
		{"percentage", "100.00", Percentage(dec("10")), "90.00"},
		{"fixed rounds half up", "50.00", FixedAmount(dec("12.345")), "37.66"},
		{"fixed clamps at zero", "10.00", FixedAmount(dec("15")), "0.00"},
		{"full percentage", "19.90", Percentage(dec("100")), "0.00"},
		{"percentage rounds half up", "0.05", Percentage(dec("50")), "0.03"},
		{"free shipping keeps price", "25.00", FreeShipping(), "25.00"},
		{"zero percentage", "25.00", Percentage(decimal.Zero), "25.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Apply(dec(tc.original), tc.discount)
			require.Equal(t, tc.want, Format(got))
		})
	}
}

func TestApplyIsNeverNegative(t *testing.T) {
	for _, d := range []Discount{Percentage(dec("150")), FixedAmount(dec("1000"))} {
		require.False(t, Apply(dec("9.99"), d).IsNegative())
	}
}

func TestDiscountPercent(t *testing.T) {
	require.Equal(t, "10.00", Format(DiscountPercent(dec("25.00"), dec("22.50"))))
	require.Equal(t, "24.68", Format(DiscountPercent(dec("50.00"), dec("37.66"))))
	require.True(t, DiscountPercent(dec("25.00"), dec("25.00")).IsZero())
	require.True(t, DiscountPercent(decimal.Zero, decimal.Zero).IsZero())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("free_shipping")
	require.NoError(t, err)
	require.Equal(t, KindFreeShipping, k)

	_, err = ParseKind("bogo")
	require.Error(t, err)
}
