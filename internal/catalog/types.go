package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/shipping"
)

var (
	// ErrStoreNotFound is returned when a store id does not resolve.
	ErrStoreNotFound = errors.New("store not found")
	// ErrProductNotFound is returned when a product id does not resolve.
	ErrProductNotFound = errors.New("product not found")
)

// Product is the catalog view consumed by checkout. A nil Stock means stock is not tracked.
type Product struct {
	ID      string          `json:"id"`
	StoreID string          `json:"storeId"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Stock   *int            `json:"stock,omitempty"`
	Active  bool            `json:"active"`
}

// HasStock reports whether qty units can be sold.
func (p Product) HasStock(qty int) bool {
	return p.Stock == nil || *p.Stock >= qty
}

// Store is a merchant with its shipping and PIX settings.
type Store struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	City     string            `json:"city"`
	PixKey   string            `json:"pixKey,omitempty"`
	Shipping shipping.Settings `json:"shipping"`
}

// AcceptsPix reports whether a local PIX payload can be generated for the store.
func (s Store) AcceptsPix() bool { return s.PixKey != "" }

// StoreReader loads stores.
type StoreReader interface {
	GetStore(ctx context.Context, id string) (Store, error)
}

// ProductReader loads products.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}
