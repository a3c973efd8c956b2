package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/order"
)

// ErrNotPixOrder is returned when a PIX payload is requested for another method.
var ErrNotPixOrder = errors.New("order is not paid with pix")

// ErrAlreadySettled is returned when payment data is requested for a settled order.
var ErrAlreadySettled = errors.New("order payment already settled")

// ReferenceWriter persists the gateway payment id of an order.
type ReferenceWriter interface {
	SetPaymentReference(ctx context.Context, orderID, reference string) error
}

// Service keeps order payment status in step with the gateway and merchants.
type Service struct {
	Orders     *order.Service
	Stores     catalog.StoreReader
	Gateway    Gateway
	References ReferenceWriter
	Logger     zerolog.Logger
}

// Sync pulls a gateway payment and applies its status to the referenced order.
func (s *Service) Sync(ctx context.Context, paymentID string) (order.Order, error) {
	if s == nil || s.Orders == nil || s.Gateway == nil {
		return order.Order{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	gp, err := s.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		return order.Order{}, err
	}
	if gp.OrderID == "" {
		return order.Order{}, fmt.Errorf("payment %s has no order reference", paymentID)
	}
	span.SetAttributes(attribute.String("order.id", gp.OrderID), attribute.String("payment.status", gp.RawStatus))
	ord, err := s.Orders.Get(ctx, gp.OrderID)
	if err != nil {
		return order.Order{}, err
	}
	s.adoptReference(ctx, &ord, gp.ID)
	if gp.Status == order.PaymentPending {
		return ord, nil
	}
	return s.Orders.SetPaymentStatus(ctx, gp.OrderID, gp.Status, "gateway", "gateway status "+gp.RawStatus)
}

// adoptReference replaces a preference reference with the payment id the
// gateway created for it, so a later cancel targets the payment.
func (s *Service) adoptReference(ctx context.Context, ord *order.Order, paymentID string) {
	if s.References == nil || paymentID == "" || ord.PaymentReference == paymentID {
		return
	}
	if err := s.References.SetPaymentReference(ctx, ord.ID, paymentID); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", ord.ID).Str("payment_id", paymentID).Msg("store payment reference failed")
		return
	}
	ord.PaymentReference = paymentID
}

// Record applies a merchant decision on the payment status.
func (s *Service) Record(ctx context.Context, orderID string, to order.PaymentStatus, actor, note string) (order.Order, error) {
	if s == nil || s.Orders == nil {
		return order.Order{}, errors.New("payment service not configured")
	}
	return s.Orders.SetPaymentStatus(ctx, orderID, to, actor, note)
}

// PixCode re-renders the local PIX payload of a pending PIX order.
func (s *Service) PixCode(ctx context.Context, orderID string) (order.Order, string, error) {
	if s == nil || s.Orders == nil || s.Stores == nil {
		return order.Order{}, "", errors.New("payment service not configured")
	}
	ord, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return order.Order{}, "", err
	}
	if ord.PaymentMethod != order.MethodPix {
		return ord, "", ErrNotPixOrder
	}
	if ord.PaymentStatus != order.PaymentPending || ord.Status == order.StatusCancelled {
		return ord, "", ErrAlreadySettled
	}
	store, err := s.Stores.GetStore(ctx, ord.StoreID)
	if err != nil {
		return ord, "", err
	}
	code, err := LocalPix(store, ord.Total, ord.ID)
	return ord, code, err
}

// ReleasePayment cancels the gateway payment of a cancelled order that was never paid.
// Card orders whose hosted checkout was never completed have nothing to cancel.
// Failures are logged; the order stays cancelled either way.
func (s *Service) ReleasePayment(ctx context.Context, ord order.Order) {
	if s == nil || s.Gateway == nil || ord.PaymentReference == "" || ord.PaymentStatus != order.PaymentPending {
		return
	}
	if isPreference(ord.PaymentReference) {
		// No payment exists until the customer completes the hosted checkout.
		s.Logger.Debug().Str("order_id", ord.ID).Msg("order has no gateway payment to cancel")
		return
	}
	if err := s.Gateway.CancelPayment(ctx, ord.PaymentReference); err != nil {
		s.Logger.Warn().Err(err).
			Str("order_id", ord.ID).
			Str("payment_reference", ord.PaymentReference).
			Msg("cancel gateway payment failed")
	}
}
