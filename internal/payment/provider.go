package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/order"
)

var (
	// ErrGatewayUnavailable reports a gateway that could not be reached or answered with a 5xx.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected reports a request the gateway refused.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
	// ErrPaymentNotFound reports an unknown gateway payment id.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrNoPixKey reports a store without a PIX key when a local payload is required.
	ErrNoPixKey = errors.New("store has no pix key")
)

// PixChargeRequest opens a PIX charge for one order.
type PixChargeRequest struct {
	OrderID     string
	Amount      decimal.Decimal
	Description string
	PayerEmail  string
}

// PixCharge is the QR data returned for a PIX charge.
type PixCharge struct {
	ChargeID      string
	QRText        string
	QRImageBase64 string
}

// PreferenceItem is one line of a hosted card checkout.
type PreferenceItem struct {
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ReturnURLs are the pages the hosted checkout redirects back to.
type ReturnURLs struct {
	Success string
	Failure string
	Pending string
}

// PreferenceRequest opens a hosted checkout for card payments. Shipping is
// charged on top of the items.
type PreferenceRequest struct {
	OrderID    string
	Items      []PreferenceItem
	Shipping   decimal.Decimal
	PayerEmail string
	ReturnURLs ReturnURLs
}

// Amount is what the hosted checkout charges: items plus shipping.
func (r PreferenceRequest) Amount() decimal.Decimal {
	total := r.Shipping
	for _, it := range r.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

// Preference identifies a hosted checkout session.
type Preference struct {
	PreferenceID string
	RedirectURL  string
}

// GatewayPayment is the gateway view of a payment.
type GatewayPayment struct {
	ID        string
	RawStatus string
	Status    order.PaymentStatus
	OrderID   string
}

// Gateway abstracts the upstream payment provider.
type Gateway interface {
	CreatePixCharge(ctx context.Context, req PixChargeRequest) (PixCharge, error)
	CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error)
	GetPayment(ctx context.Context, id string) (GatewayPayment, error)
	CancelPayment(ctx context.Context, id string) error
}
