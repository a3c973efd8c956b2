package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

const defaultMercadoPagoURL = "https://api.mercadopago.com"

// MercadoPago implements Gateway against the Mercado Pago REST API.
// Create calls go out once with an idempotency key derived from the order id.
type MercadoPago struct {
	BaseURL     string
	AccessToken string
	HTTP        resilience.HTTPClient
}

type mpPayer struct {
	Email string `json:"email,omitempty"`
}

type mpPaymentRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description,omitempty"`
	PaymentMethodID   string      `json:"payment_method_id"`
	ExternalReference string      `json:"external_reference"`
	Payer             mpPayer     `json:"payer"`
}

type mpPayment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

type mpItem struct {
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id"`
}

type mpPreferenceRequest struct {
	Items             []mpItem          `json:"items"`
	ExternalReference string            `json:"external_reference"`
	Payer             mpPayer           `json:"payer"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	Shipments         *mpShipments      `json:"shipments,omitempty"`
}

type mpShipments struct {
	Mode string      `json:"mode"`
	Cost json.Number `json:"cost"`
}

type mpPreference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePixCharge opens a PIX payment and returns its QR data.
func (m MercadoPago) CreatePixCharge(ctx context.Context, req PixChargeRequest) (PixCharge, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return PixCharge{}, errors.New("order id is required")
	}
	body := mpPaymentRequest{
		TransactionAmount: json.Number(req.Amount.StringFixed(2)),
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.OrderID,
		Payer:             mpPayer{Email: req.PayerEmail},
	}
	var out mpPayment
	if err := m.call(ctx, http.MethodPost, "/v1/payments", req.OrderID+":pix", body, &out, true); err != nil {
		return PixCharge{}, err
	}
	data := out.PointOfInteraction.TransactionData
	return PixCharge{ChargeID: out.ID.String(), QRText: data.QRCode, QRImageBase64: data.QRCodeBase64}, nil
}

// CreatePreference opens a hosted checkout for card payments.
func (m MercadoPago) CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return Preference{}, errors.New("order id is required")
	}
	body := mpPreferenceRequest{
		ExternalReference: req.OrderID,
		Payer:             mpPayer{Email: req.PayerEmail},
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, mpItem{
			Title:      it.Title,
			Quantity:   it.Quantity,
			UnitPrice:  json.Number(it.UnitPrice.StringFixed(2)),
			CurrencyID: "BRL",
		})
	}
	if req.Shipping.IsPositive() {
		body.Shipments = &mpShipments{Mode: "not_specified", Cost: json.Number(req.Shipping.StringFixed(2))}
	}
	if urls := backURLs(req.ReturnURLs); len(urls) > 0 {
		body.BackURLs = urls
		if urls["success"] != "" {
			body.AutoReturn = "approved"
		}
	}
	var out mpPreference
	if err := m.call(ctx, http.MethodPost, "/checkout/preferences", req.OrderID+":card", body, &out, true); err != nil {
		return Preference{}, err
	}
	return Preference{PreferenceID: out.ID, RedirectURL: out.InitPoint}, nil
}

// GetPayment fetches a payment and maps its status.
func (m MercadoPago) GetPayment(ctx context.Context, id string) (GatewayPayment, error) {
	if strings.TrimSpace(id) == "" {
		return GatewayPayment{}, ErrPaymentNotFound
	}
	var out mpPayment
	if err := m.call(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), "", nil, &out, false); err != nil {
		return GatewayPayment{}, err
	}
	return GatewayPayment{
		ID:        out.ID.String(),
		RawStatus: out.Status,
		Status:    MapGatewayStatus(out.Status),
		OrderID:   out.ExternalReference,
	}, nil
}

// CancelPayment cancels a payment that has not been captured yet.
func (m MercadoPago) CancelPayment(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrPaymentNotFound
	}
	return m.call(ctx, http.MethodPut, "/v1/payments/"+url.PathEscape(id), "", map[string]string{"status": "cancelled"}, nil, false)
}

func (m MercadoPago) call(ctx context.Context, method, path, idemKey string, in, out any, once bool) error {
	base := strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	if base == "" {
		base = defaultMercadoPagoURL
	}
	var payload io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.AccessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set("X-Idempotency-Key", idemKey)
	}

	var resp *http.Response
	if once {
		resp, err = m.HTTP.DoOnce(ctx, req)
	} else {
		resp, err = m.HTTP.Do(ctx, req)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctxErr)
		}
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrPaymentNotFound
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s", ErrGatewayRejected, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	return nil
}

func backURLs(r ReturnURLs) map[string]string {
	out := make(map[string]string, 3)
	for k, v := range map[string]string{"success": r.Success, "failure": r.Failure, "pending": r.Pending} {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// MapGatewayStatus normalises a gateway status onto the order payment status.
func MapGatewayStatus(status string) order.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return order.PaymentPaid
	case "rejected", "cancelled", "canceled", "expired":
		return order.PaymentFailed
	case "refunded", "charged_back":
		return order.PaymentRefunded
	default:
		return order.PaymentPending
	}
}
