package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pix"
)

// Payload sources.
const (
	SourceGateway = "gateway"
	SourceLocal   = "local"
)

// Payload is what the customer needs to pay an order.
type Payload struct {
	Method         order.PaymentMethod `json:"method"`
	Source         string              `json:"source"`
	Reference      string              `json:"reference,omitempty"`
	PixText        string              `json:"pixText,omitempty"`
	PixImageBase64 string              `json:"pixImageBase64,omitempty"`
	RedirectURL    string              `json:"redirectUrl,omitempty"`
}

const preferencePrefix = "preference:"

// StoredReference is the value persisted as the order's payment reference.
// Card preferences are prefixed so they are never mistaken for a payment id.
func (p *Payload) StoredReference() string {
	if p == nil || p.Reference == "" {
		return ""
	}
	if p.Method == order.MethodCard {
		return preferencePrefix + p.Reference
	}
	return p.Reference
}

// isPreference reports whether a stored reference names a hosted checkout
// rather than a gateway payment.
func isPreference(ref string) bool {
	return strings.HasPrefix(ref, preferencePrefix)
}

// PayloadRequest describes the order a payload is built for.
type PayloadRequest struct {
	OrderID    string
	Method     order.PaymentMethod
	Store      catalog.Store
	Total      decimal.Decimal
	Items      []PreferenceItem
	Shipping   decimal.Decimal
	PayerEmail string
}

// PayloadBuilder asks the gateway for payment data and falls back to a
// locally encoded PIX payload when the gateway cannot provide one.
type PayloadBuilder struct {
	Gateway     Gateway
	PixFallback bool
	ReturnURLs  ReturnURLs
	Logger      zerolog.Logger
}

// Build returns nil for methods settled outside the platform.
func (b *PayloadBuilder) Build(ctx context.Context, req PayloadRequest) (*Payload, error) {
	ctx, span := otel.Tracer("payment.PayloadBuilder").Start(ctx, "PayloadBuilder.Build")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", req.OrderID), attribute.String("payment.method", string(req.Method)))

	var (
		p   *Payload
		err error
	)
	switch req.Method {
	case order.MethodCashOnDelivery, order.MethodManual:
		return nil, nil
	case order.MethodPix:
		p, err = b.pix(ctx, req)
	case order.MethodCard:
		p, err = b.card(ctx, req)
	default:
		err = fmt.Errorf("unsupported payment method %q", req.Method)
	}
	if err != nil {
		span.RecordError(err)
		obs.Inc(obs.PaymentPayloadTotal, string(req.Method), "error")
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.source", p.Source))
	obs.Inc(obs.PaymentPayloadTotal, string(req.Method), p.Source)
	return p, nil
}

func (b *PayloadBuilder) pix(ctx context.Context, req PayloadRequest) (*Payload, error) {
	if b.Gateway != nil {
		charge, err := b.Gateway.CreatePixCharge(ctx, PixChargeRequest{
			OrderID:     req.OrderID,
			Amount:      req.Total,
			Description: Description(req.OrderID),
			PayerEmail:  req.PayerEmail,
		})
		switch {
		case err == nil && charge.QRText != "" && pix.Verify(charge.QRText) == nil:
			return &Payload{
				Method:         order.MethodPix,
				Source:         SourceGateway,
				Reference:      charge.ChargeID,
				PixText:        charge.QRText,
				PixImageBase64: charge.QRImageBase64,
			}, nil
		case err == nil:
			b.Logger.Warn().Str("order_id", req.OrderID).Str("charge_id", charge.ChargeID).Msg("gateway returned no usable pix qr")
		case errors.Is(err, ErrGatewayUnavailable):
			b.Logger.Warn().Err(err).Str("order_id", req.OrderID).Msg("pix gateway unavailable")
		default:
			return nil, err
		}
		if !b.PixFallback {
			return nil, ErrGatewayUnavailable
		}
	}
	code, err := LocalPix(req.Store, req.Total, req.OrderID)
	if err != nil {
		return nil, err
	}
	return &Payload{Method: order.MethodPix, Source: SourceLocal, PixText: code}, nil
}

func (b *PayloadBuilder) card(ctx context.Context, req PayloadRequest) (*Payload, error) {
	if b.Gateway == nil {
		return nil, fmt.Errorf("%w: no gateway configured", ErrGatewayUnavailable)
	}
	prefReq := PreferenceRequest{
		OrderID:    req.OrderID,
		Items:      req.Items,
		Shipping:   req.Shipping,
		PayerEmail: req.PayerEmail,
		ReturnURLs: b.ReturnURLs,
	}
	if amount := prefReq.Amount(); !amount.Equal(req.Total.Round(2)) {
		return nil, fmt.Errorf("card preference charges %s but order total is %s", amount.StringFixed(2), req.Total.StringFixed(2))
	}
	pref, err := b.Gateway.CreatePreference(ctx, prefReq)
	if err != nil {
		return nil, err
	}
	return &Payload{Method: order.MethodCard, Source: SourceGateway, Reference: pref.PreferenceID, RedirectURL: pref.RedirectURL}, nil
}

// LocalPix encodes a static PIX payload for the store.
func LocalPix(store catalog.Store, total decimal.Decimal, orderID string) (string, error) {
	if !store.AcceptsPix() {
		return "", ErrNoPixKey
	}
	return pix.Encode(pix.Payload{
		Key:          store.PixKey,
		Amount:       total,
		MerchantName: store.Name,
		MerchantCity: store.City,
		Description:  Description(orderID),
	})
}

// Description is the payer-visible reference for an order.
func Description(orderID string) string {
	short := strings.ReplaceAll(orderID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return "Pedido " + strings.ToUpper(short)
}
