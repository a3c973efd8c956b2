package shipping

import (
	"github.com/shopspring/decimal"
)

// Mode describes how a shipping quote was reached.
type Mode string

const (
	// ModeFixed charges the store's fixed price.
	ModeFixed Mode = "fixed"
	// ModeFreeThreshold waives shipping because the subtotal reached the threshold.
	ModeFreeThreshold Mode = "free_threshold"
	// ModePromotion waives shipping because a free-shipping promotion applied.
	ModePromotion Mode = "promotion"
	// ModeNegotiate means shipping is agreed outside the platform and is still unresolved.
	ModeNegotiate Mode = "negotiate"
)

// Settings is a store's shipping configuration.
type Settings struct {
	FixedPrice          *decimal.Decimal `json:"fixedPrice,omitempty"`
	NegotiateExternally bool             `json:"negotiateExternally"`
	FreeThreshold       *decimal.Decimal `json:"freeThreshold,omitempty"`
}

// Quote is the shipping cost for one store basket.
type Quote struct {
	Cost decimal.Decimal `json:"cost"`
	Mode Mode            `json:"mode"`
}

// Unresolved reports whether the cost is pending an external agreement rather than free.
func (q Quote) Unresolved() bool { return q.Mode == ModeNegotiate }

// Calculate quotes shipping for a basket subtotal.
func Calculate(s Settings, subtotal decimal.Decimal) Quote {
	if s.NegotiateExternally {
		return Quote{Cost: decimal.Zero, Mode: ModeNegotiate}
	}
	if s.FreeThreshold != nil && subtotal.GreaterThanOrEqual(*s.FreeThreshold) {
		return Quote{Cost: decimal.Zero, Mode: ModeFreeThreshold}
	}
	if s.FixedPrice == nil || s.FixedPrice.IsNegative() {
		return Quote{Cost: decimal.Zero, Mode: ModeFixed}
	}
	return Quote{Cost: s.FixedPrice.Round(2), Mode: ModeFixed}
}

// Waive zeroes a quote because a free-shipping promotion applies. Negotiated
// shipping stays unresolved since the platform never priced it.
func Waive(q Quote) Quote {
	if q.Mode == ModeNegotiate {
		return q
	}
	return Quote{Cost: decimal.Zero, Mode: ModePromotion}
}
