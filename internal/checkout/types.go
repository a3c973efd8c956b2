package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Degraded step names reported when a post-order step fails.
const (
	StepStock   = "stock"
	StepCart    = "cart"
	StepPayment = "payment"
)

// Request is the checkout input for one store. When Items is empty the
// user's persisted cart is used.
type Request struct {
	StoreID         string        `json:"storeId" validate:"required,max=64"`
	Items           []cart.Line   `json:"items" validate:"omitempty,max=200,dive"`
	ShippingAddress order.Address `json:"shippingAddress"`
	PaymentMethod   string        `json:"paymentMethod" validate:"required,oneof=pix card cash_on_delivery manual"`
	PayerEmail      string        `json:"payerEmail" validate:"omitempty,email"`
	Notes           string        `json:"notes" validate:"max=500"`
}

// StockLine is a stock decrement for one tracked product.
type StockLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Mutation is everything persisted by one checkout: the order with its items,
// the stock decrements and the cart lines to clear.
type Mutation struct {
	Order          order.Order
	Stock          []StockLine
	CartUserID     string
	CartStoreID    string
	CartProductIDs []string
}

// CommitResult reports the auxiliary steps that could not be applied after
// the order itself was stored.
type CommitResult struct {
	StockErr error
	CartErr  error
}

// LineView is a priced line in API responses.
type LineView struct {
	ProductID         string  `json:"productId"`
	Name              string  `json:"name"`
	Quantity          int     `json:"quantity"`
	UnitPrice         string  `json:"unitPrice"`
	OriginalUnitPrice string  `json:"originalUnitPrice"`
	DiscountPercent   string  `json:"discountPercent"`
	PromotionID       *string `json:"promotionId,omitempty"`
	PromotionName     *string `json:"promotionName,omitempty"`
	Subtotal          string  `json:"subtotal"`
}

// Totals are the store basket amounts shared by previews and orders.
type Totals struct {
	Subtotal           string `json:"subtotal"`
	OriginalSubtotal   string `json:"originalSubtotal,omitempty"`
	DiscountAmount     string `json:"discountAmount,omitempty"`
	ShippingCost       string `json:"shippingCost"`
	ShippingMode       string `json:"shippingMode"`
	ShippingUnresolved bool   `json:"shippingUnresolved,omitempty"`
	Total              string `json:"total"`
}

// Preview is a priced basket that was not turned into an order.
type Preview struct {
	StoreID string     `json:"storeId"`
	Items   []LineView `json:"items"`
	Totals
}

// Result is the checkout response.
type Result struct {
	OrderID        string              `json:"orderId"`
	Status         order.Status        `json:"status"`
	PaymentStatus  order.PaymentStatus `json:"paymentStatus"`
	PaymentMethod  order.PaymentMethod `json:"paymentMethod"`
	Items          []LineView          `json:"items"`
	PaymentPayload *payment.Payload    `json:"paymentPayload,omitempty"`
	Degraded       []string            `json:"degraded,omitempty"`
	Totals
}

func totalsOf(o order.Order, unresolved bool) Totals {
	t := Totals{
		Subtotal:           pricing.Format(o.Subtotal),
		ShippingCost:       pricing.Format(o.ShippingCost),
		ShippingMode:       o.ShippingMode,
		ShippingUnresolved: unresolved,
		Total:              pricing.Format(o.Total),
	}
	if o.DiscountAmount.IsPositive() {
		t.OriginalSubtotal = pricing.Format(o.OriginalSubtotal)
		t.DiscountAmount = pricing.Format(o.DiscountAmount)
	}
	return t
}

func viewItems(items []order.Item) []LineView {
	out := make([]LineView, 0, len(items))
	for _, it := range items {
		out = append(out, LineView{
			ProductID:         it.ProductID,
			Name:              it.ProductName,
			Quantity:          it.Quantity,
			UnitPrice:         pricing.Format(it.UnitPrice),
			OriginalUnitPrice: pricing.Format(it.OriginalUnitPrice),
			DiscountPercent:   pricing.Format(it.DiscountPercent),
			PromotionID:       it.PromotionID,
			PromotionName:     it.PromotionName,
			Subtotal:          pricing.Format(it.Subtotal),
		})
	}
	return out
}

func sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
