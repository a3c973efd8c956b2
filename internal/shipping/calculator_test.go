package shipping

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCalculateThresholdBoundary(t *testing.T) {
	t.Parallel()
	settings := Settings{FixedPrice: ptr("8.00"), FreeThreshold: ptr("100.00")}

	at := Calculate(settings, decimal.RequireFromString("100.00"))
	require.True(t, at.Cost.IsZero())
	require.Equal(t, ModeFreeThreshold, at.Mode)

	below := Calculate(settings, decimal.RequireFromString("99.99"))
	require.Equal(t, "8.00", below.Cost.StringFixed(2))
	require.Equal(t, ModeFixed, below.Mode)
	require.False(t, below.Unresolved())
}

func TestCalculateNegotiateIsUnresolved(t *testing.T) {
	t.Parallel()
	q := Calculate(Settings{NegotiateExternally: true, FixedPrice: ptr("12")}, decimal.NewFromInt(500))
	require.True(t, q.Cost.IsZero())
	require.True(t, q.Unresolved())
}

func TestCalculateWithoutFixedPrice(t *testing.T) {
	t.Parallel()
	q := Calculate(Settings{}, decimal.NewFromInt(10))
	require.True(t, q.Cost.IsZero())
	require.Equal(t, ModeFixed, q.Mode)
}

func TestWaive(t *testing.T) {
	t.Parallel()
	fixed := Calculate(Settings{FixedPrice: ptr("8")}, decimal.NewFromInt(10))
	waived := Waive(fixed)
	require.True(t, waived.Cost.IsZero())
	require.Equal(t, ModePromotion, waived.Mode)

	negotiated := Waive(Quote{Mode: ModeNegotiate, Cost: decimal.Zero})
	require.True(t, negotiated.Unresolved())
}
