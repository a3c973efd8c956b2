package promotion

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var (
	// ErrInvalidDiscount is returned when a promotion is constructed with an unusable rule.
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrInvalidWindow indicates the active window ends before it starts.
	ErrInvalidWindow = fmt.Errorf("%w: window ends before it starts", ErrInvalidDiscount)
)

var hundred = decimal.NewFromInt(100)

// Promotion is a time-windowed discount owned by a store. An empty ProductIDs
// scope makes it store-wide.
type Promotion struct {
	ID         string           `json:"id"`
	StoreID    string           `json:"storeId"`
	Name       string           `json:"name"`
	ProductIDs []string         `json:"productIds,omitempty"`
	Discount   pricing.Discount `json:"discount"`
	StartsAt   time.Time        `json:"startsAt"`
	EndsAt     time.Time        `json:"endsAt"`
	Active     bool             `json:"active"`
	ShowTimer  bool             `json:"showTimer"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// StoreWide reports whether the promotion has no product scope.
func (p Promotion) StoreWide() bool { return len(p.ProductIDs) == 0 }

// Covers reports whether the promotion is scoped to the given product.
func (p Promotion) Covers(productID string) bool {
	return slices.Contains(p.ProductIDs, productID)
}

// Running reports whether the promotion is enabled and now falls inside [StartsAt, EndsAt].
func (p Promotion) Running(now time.Time) bool {
	if !p.Active {
		return false
	}
	return !now.Before(p.StartsAt) && !now.After(p.EndsAt)
}

// Validate rejects malformed rules at creation time.
func (p Promotion) Validate() error {
	if strings.TrimSpace(p.StoreID) == "" {
		return fmt.Errorf("%w: store is required", ErrInvalidDiscount)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDiscount)
	}
	if p.EndsAt.Before(p.StartsAt) {
		return ErrInvalidWindow
	}
	switch p.Discount.Kind {
	case pricing.KindPercentage:
		if p.Discount.Value.IsNegative() || p.Discount.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidDiscount)
		}
	case pricing.KindFixedAmount:
		if p.Discount.Value.IsNegative() {
			return fmt.Errorf("%w: amount must not be negative", ErrInvalidDiscount)
		}
	case pricing.KindFreeShipping:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDiscount, p.Discount.Kind)
	}
	for _, id := range p.ProductIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: empty product scope entry", ErrInvalidDiscount)
		}
	}
	return nil
}

// Select picks the promotion applicable to productID at now. Running product-scoped
// promotions win over store-wide ones; within a tier the latest CreatedAt wins and
// equal timestamps keep the earlier entry.
func Select(promos []Promotion, productID string, now time.Time) (Promotion, bool) {
	var (
		scoped, storeWide       Promotion
		hasScoped, hasStoreWide bool
	)
	for _, p := range promos {
		if !p.Running(now) {
			continue
		}
		switch {
		case p.Covers(productID):
			if !hasScoped || p.CreatedAt.After(scoped.CreatedAt) {
				scoped, hasScoped = p, true
			}
		case p.StoreWide():
			if !hasStoreWide || p.CreatedAt.After(storeWide.CreatedAt) {
				storeWide, hasStoreWide = p, true
			}
		}
	}
	if hasScoped {
		return scoped, true
	}
	return storeWide, hasStoreWide
}
