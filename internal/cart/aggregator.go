package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/promotion"
)

var (
	// ErrProductUnavailable indicates an inactive product in the basket.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrInsufficientStock indicates tracked stock below the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrEmptyBasket indicates the cart holds no lines for the target store.
	ErrEmptyBasket = errors.New("empty basket")
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// LineError ties a basket failure to the offending product.
type LineError struct {
	ProductID string
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("product %s: %v", e.ProductID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Line is a cart entry.
type Line struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// AppliedPromotion references the promotion that priced a line.
type AppliedPromotion struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Discount pricing.Discount `json:"discount"`
}

// PricedLine is a basket line after promotion resolution.
type PricedLine struct {
	ProductID        string            `json:"productId"`
	Name             string            `json:"name"`
	Quantity         int               `json:"quantity"`
	UnitPrice        decimal.Decimal   `json:"unitPrice"`
	FinalUnitPrice   decimal.Decimal   `json:"finalUnitPrice"`
	Promotion        *AppliedPromotion `json:"promotion,omitempty"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	OriginalSubtotal decimal.Decimal   `json:"originalSubtotal"`
	TracksStock      bool              `json:"-"`
}

// StoreBasket is the priced subset of a cart that belongs to one store.
type StoreBasket struct {
	StoreID          string          `json:"storeId"`
	Lines            []PricedLine    `json:"lines"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	OriginalSubtotal decimal.Decimal `json:"originalSubtotal"`
	FreeShipping     bool            `json:"freeShipping"`
}

// Discount is the summed difference between undiscounted and discounted lines.
func (b StoreBasket) Discount() decimal.Decimal {
	return b.OriginalSubtotal.Sub(b.Subtotal)
}

// PromotionSource lists a store's promotions. Implementations may include
// promotions outside their window; the resolver filters them.
type PromotionSource interface {
	ActivePromotions(ctx context.Context, storeID string, now time.Time) ([]promotion.Promotion, error)
}

// Aggregator prices the lines of one store.
type Aggregator struct {
	Products   catalog.ProductReader
	Promotions PromotionSource
	Now        func() time.Time
}

func (a *Aggregator) now() time.Time {
	if a != nil && a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// Build prices the lines owned by storeID. Lines for products of other stores are
// skipped. Any line failure aborts the whole basket.
func (a *Aggregator) Build(ctx context.Context, storeID string, lines []Line) (StoreBasket, error) {
	if a == nil || a.Products == nil || a.Promotions == nil {
		return StoreBasket{}, errors.New("cart aggregator not configured")
	}
	now := a.now()
	basket := StoreBasket{StoreID: storeID, Subtotal: decimal.Zero, OriginalSubtotal: decimal.Zero}

	type owned struct {
		product catalog.Product
		qty     int
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return StoreBasket{}, &LineError{ProductID: line.ProductID, Err: ErrInvalidQuantity}
		}
	}
	var mine []owned
	for _, line := range mergeLines(lines) {
		product, err := a.Products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return StoreBasket{}, &LineError{ProductID: line.ProductID, Err: err}
		}
		if product.StoreID != storeID {
			continue
		}
		if !product.Active {
			return StoreBasket{}, &LineError{ProductID: product.ID, Err: ErrProductUnavailable}
		}
		if !product.HasStock(line.Quantity) {
			return StoreBasket{}, &LineError{ProductID: product.ID, Err: ErrInsufficientStock}
		}
		mine = append(mine, owned{product: product, qty: line.Quantity})
	}
	if len(mine) == 0 {
		return StoreBasket{}, ErrEmptyBasket
	}

	promos, err := a.Promotions.ActivePromotions(ctx, storeID, now)
	if err != nil {
		return StoreBasket{}, fmt.Errorf("load promotions: %w", err)
	}

	for _, item := range mine {
		priced := priceLine(item.product, item.qty, promos, now)
		if priced.Promotion != nil && priced.Promotion.Discount.Kind == pricing.KindFreeShipping {
			basket.FreeShipping = true
		}
		basket.Subtotal = basket.Subtotal.Add(priced.Subtotal)
		basket.OriginalSubtotal = basket.OriginalSubtotal.Add(priced.OriginalSubtotal)
		basket.Lines = append(basket.Lines, priced)
	}
	return basket, nil
}

func priceLine(p catalog.Product, qty int, promos []promotion.Promotion, now time.Time) PricedLine {
	unit := pricing.Round(p.Price)
	final := unit
	line := PricedLine{
		ProductID:   p.ID,
		Name:        p.Name,
		Quantity:    qty,
		UnitPrice:   unit,
		TracksStock: p.Stock != nil,
	}
	if promo, ok := promotion.Select(promos, p.ID, now); ok {
		final = pricing.Apply(unit, promo.Discount)
		line.Promotion = &AppliedPromotion{ID: promo.ID, Name: promo.Name, Discount: promo.Discount}
	}
	q := decimal.NewFromInt(int64(qty))
	line.FinalUnitPrice = final
	line.Subtotal = final.Mul(q)
	line.OriginalSubtotal = unit.Mul(q)
	return line
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(lines []Line) []Line {
	index := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}
