package promotion

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var (
	now   = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	start = now.Add(-24 * time.Hour)
	end   = now.Add(24 * time.Hour)
)

func promo(id string, created time.Time, products ...string) Promotion {
	return Promotion{
		ID:         id,
		StoreID:    "store-1",
		Name:       id,
		ProductIDs: products,
		Discount:   pricing.Percentage(decimal.NewFromInt(10)),
		StartsAt:   start,
		EndsAt:     end,
		Active:     true,
		CreatedAt:  created,
	}
}

func TestSelectPrefersProductScopeRegardlessOfOrder(t *testing.T) {
	older := promo("product", now.Add(-48*time.Hour), "p1")
	newer := promo("store", now.Add(-time.Hour))

	for _, set := range [][]Promotion{{older, newer}, {newer, older}} {
		got, ok := Select(set, "p1", now)
		require.True(t, ok)
		require.Equal(t, "product", got.ID)
	}
}

func TestSelectTieBreaksByRecency(t *testing.T) {
	a := promo("a", now.Add(-3*time.Hour), "p1")
	b := promo("b", now.Add(-2*time.Hour), "p1")

	got, ok := Select([]Promotion{b, a}, "p1", now)
	require.True(t, ok)
	require.Equal(t, "b", got.ID)

	s1 := promo("s1", now.Add(-3*time.Hour))
	s2 := promo("s2", now.Add(-time.Hour))
	got, ok = Select([]Promotion{s1, s2}, "p9", now)
	require.True(t, ok)
	require.Equal(t, "s2", got.ID)
}

func TestSelectEqualTimestampsKeepFirst(t *testing.T) {
	a := promo("a", now.Add(-time.Hour), "p1")
	b := promo("b", now.Add(-time.Hour), "p1")
	got, ok := Select([]Promotion{a, b}, "p1", now)
	require.True(t, ok)
	require.Equal(t, "a", got.ID)
}

func TestSelectWindowIsInclusive(t *testing.T) {
	p := promo("edge", now.Add(-time.Hour), "p1")
	p.StartsAt = now
	p.EndsAt = now

	_, ok := Select([]Promotion{p}, "p1", now)
	require.True(t, ok)
	_, ok = Select([]Promotion{p}, "p1", now.Add(time.Nanosecond))
	require.False(t, ok)
	_, ok = Select([]Promotion{p}, "p1", now.Add(-time.Nanosecond))
	require.False(t, ok)
}

func TestSelectSkipsInactiveAndOtherProducts(t *testing.T) {
	inactive := promo("inactive", now, "p1")
	inactive.Active = false
	other := promo("other", now, "p2")

	_, ok := Select([]Promotion{inactive, other}, "p1", now)
	require.False(t, ok)
}

func TestSelectMultiProductScope(t *testing.T) {
	listed := promo("listed", now.Add(-time.Hour), "p1", "p2", "p3")
	got, ok := Select([]Promotion{listed}, "p2", now)
	require.True(t, ok)
	require.Equal(t, "listed", got.ID)
}

func TestValidate(t *testing.T) {
	valid := promo("ok", now)
	require.NoError(t, valid.Validate())

	cases := map[string]func(p *Promotion){
		"negative percentage": func(p *Promotion) { p.Discount = pricing.Percentage(decimal.NewFromInt(-1)) },
		"percentage over 100": func(p *Promotion) { p.Discount = pricing.Percentage(decimal.NewFromInt(101)) },
		"negative amount":     func(p *Promotion) { p.Discount = pricing.FixedAmount(decimal.NewFromInt(-5)) },
		"unknown kind":        func(p *Promotion) { p.Discount = pricing.Discount{Kind: "bogo"} },
		"inverted window":     func(p *Promotion) { p.EndsAt = p.StartsAt.Add(-time.Second) },
		"missing name":        func(p *Promotion) { p.Name = " " },
		"blank scope entry":   func(p *Promotion) { p.ProductIDs = []string{""} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := promo("bad", now)
			mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidDiscount))
		})
	}
}
