package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pix"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/promotion"
)

func TestCreatePricesPromotionAndShipping(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	emitter := &captureEmitter{}
	svc := newService(repo)
	svc.Events = emitter

	res, err := svc.Create(context.Background(), "u1", Request{
		StoreID:         "A",
		Items:           []cart.Line{{ProductID: "x", Quantity: 2}},
		ShippingAddress: address(),
		PaymentMethod:   "cash_on_delivery",
	})
	require.NoError(t, err)
	require.Equal(t, "50.00", res.OriginalSubtotal)
	require.Equal(t, "45.00", res.Subtotal)
	require.Equal(t, "5.00", res.DiscountAmount)
	require.Equal(t, "8.00", res.ShippingCost)
	require.Equal(t, "fixed", res.ShippingMode)
	require.Equal(t, "53.00", res.Total)
	require.Empty(t, res.Degraded)
	require.Nil(t, res.PaymentPayload)
	require.Equal(t, order.StatusPending, res.Status)
	require.Equal(t, order.PaymentPending, res.PaymentStatus)

	require.Len(t, res.Items, 1)
	require.Equal(t, "22.50", res.Items[0].UnitPrice)
	require.Equal(t, "25.00", res.Items[0].OriginalUnitPrice)
	require.Equal(t, "10.00", res.Items[0].DiscountPercent)
	require.Equal(t, "promo-x", *res.Items[0].PromotionID)

	stored := repo.orders[res.OrderID]
	require.Equal(t, "u1", stored.UserID)
	require.Equal(t, res.OrderID, stored.Items[0].OrderID)
	require.Equal(t, 8, repo.stock("x"))
	require.Equal(t, []string{events.TopicOrderCreated}, emitter.topics)
}

func TestCreateInsufficientStockMutatesNothing(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	repo.carts["u1"] = []cart.Line{{ProductID: "x", Quantity: 11}}

	_, err := newService(repo).Create(context.Background(), "u1", Request{StoreID: "A", ShippingAddress: address(), PaymentMethod: "manual"})
	require.ErrorIs(t, err, cart.ErrInsufficientStock)
	var lineErr *cart.LineError
	require.True(t, errors.As(err, &lineErr))
	require.Equal(t, "x", lineErr.ProductID)

	require.Empty(t, repo.orders)
	require.Equal(t, 10, repo.stock("x"))
	require.Len(t, repo.carts["u1"], 1)
}

func TestCreateStockRaceAbortsWithoutOrder(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	repo.commitErr = &cart.LineError{ProductID: "x", Err: cart.ErrInsufficientStock}

	_, err := newService(repo).Create(context.Background(), "u1", Request{
		StoreID: "A", Items: []cart.Line{{ProductID: "x", Quantity: 1}}, ShippingAddress: address(), PaymentMethod: "manual",
	})
	require.ErrorIs(t, err, cart.ErrInsufficientStock)
	require.Empty(t, repo.orders)
}

func TestCreateSplitsBasketByStore(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	repo.carts["u1"] = []cart.Line{{ProductID: "x", Quantity: 1}, {ProductID: "b1", Quantity: 2}, {ProductID: "y", Quantity: 1}}

	res, err := newService(repo).Create(context.Background(), "u1", Request{StoreID: "A", ShippingAddress: address(), PaymentMethod: "manual"})
	require.NoError(t, err)
	// 22.50 + 12.00, below the free shipping threshold.
	require.Equal(t, "34.50", res.Subtotal)
	require.Equal(t, "42.50", res.Total)
	require.Len(t, res.Items, 2)

	require.Equal(t, []cart.Line{{ProductID: "b1", Quantity: 2}}, repo.carts["u1"])
	require.Equal(t, 3, repo.stock("b1"))
}

func TestCreateUnknownStoreAndEmptyBasket(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := newService(repo)

	_, err := svc.Create(context.Background(), "u1", Request{StoreID: "Z", Items: []cart.Line{{ProductID: "x", Quantity: 1}}, PaymentMethod: "manual"})
	require.ErrorIs(t, err, catalog.ErrStoreNotFound)

	_, err = svc.Create(context.Background(), "u1", Request{StoreID: "A", Items: []cart.Line{{ProductID: "b1", Quantity: 1}}, PaymentMethod: "manual"})
	require.ErrorIs(t, err, cart.ErrEmptyBasket)

	_, err = svc.Create(context.Background(), "u1", Request{StoreID: "A", Items: []cart.Line{{ProductID: "x", Quantity: 1}}, PaymentMethod: "boleto"})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), "", Request{StoreID: "A", PaymentMethod: "manual"})
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.Empty(t, repo.orders)
}

func TestCreateNegotiatedShippingIsUnresolved(t *testing.T) {
	t.Parallel()
	res, err := newService(newMemRepo()).Create(context.Background(), "u1", Request{
		StoreID: "B", Items: []cart.Line{{ProductID: "b1", Quantity: 1}}, ShippingAddress: address(), PaymentMethod: "manual",
	})
	require.NoError(t, err)
	require.True(t, res.ShippingUnresolved)
	require.Equal(t, "0.00", res.ShippingCost)
	require.Equal(t, "70.00", res.Total)
}

func TestCreateFreeShippingPromotion(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	repo.promos["A"] = append(repo.promos["A"], promotion.Promotion{
		ID: "frete", StoreID: "A", Name: "Frete gratis", ProductIDs: []string{"y"}, Discount: pricing.FreeShipping(), Active: true,
		StartsAt: testNow.Add(-time.Hour), EndsAt: testNow.Add(time.Hour), CreatedAt: testNow,
	})
	res, err := newService(repo).Create(context.Background(), "u1", Request{
		StoreID: "A", Items: []cart.Line{{ProductID: "y", Quantity: 1}}, ShippingAddress: address(), PaymentMethod: "manual",
	})
	require.NoError(t, err)
	require.Equal(t, "0.00", res.ShippingCost)
	require.Equal(t, "promotion", res.ShippingMode)
	require.Equal(t, "12.00", res.Total)
}

func TestCreateReportsDegradedSteps(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	repo.stockErr = errors.New("deadlock detected")
	repo.cartErr = errors.New("cart table locked")
	queue := &captureQueue{}
	emitter := &captureEmitter{}
	svc := newService(repo)
	svc.Reconciler = queue
	svc.Events = emitter

	res, err := svc.Create(context.Background(), "u1", Request{
		StoreID: "A", Items: []cart.Line{{ProductID: "x", Quantity: 2}, {ProductID: "y", Quantity: 1}}, ShippingAddress: address(), PaymentMethod: "manual",
	})
	require.NoError(t, err)
	require.Equal(t, []string{StepStock, StepCart}, res.Degraded)
	require.Contains(t, repo.orders, res.OrderID)
	require.Equal(t, 10, repo.stock("x"))

	require.Len(t, queue.tasks, 1)
	task := queue.tasks[0]
	require.Equal(t, res.OrderID, task.OrderID)
	require.Equal(t, []StockLine{{ProductID: "x", Quantity: 2}}, task.Stock)
	require.ElementsMatch(t, []string{"x", "y"}, task.ProductIDs)
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicCheckoutDegraded}, emitter.topics)

	// The queued task brings inventory in line once the store recovers.
	require.NoError(t, (&Reconciler{Repo: repo}).Reconcile(context.Background(), task))
	require.NoError(t, (&Reconciler{Repo: repo}).Reconcile(context.Background(), task))
	require.Equal(t, 8, repo.stock("x"))
}

type downGateway struct {
	calls int
}

func (g *downGateway) CreatePixCharge(context.Context, payment.PixChargeRequest) (payment.PixCharge, error) {
	g.calls++
	return payment.PixCharge{}, fmt.Errorf("%w: connection refused", payment.ErrGatewayUnavailable)
}

func (g *downGateway) CreatePreference(context.Context, payment.PreferenceRequest) (payment.Preference, error) {
	g.calls++
	return payment.Preference{}, fmt.Errorf("%w: connection refused", payment.ErrGatewayUnavailable)
}

func (g *downGateway) GetPayment(context.Context, string) (payment.GatewayPayment, error) {
	return payment.GatewayPayment{}, payment.ErrGatewayUnavailable
}

func (g *downGateway) CancelPayment(context.Context, string) error { return payment.ErrGatewayUnavailable }

func TestCreatePixFallsBackToLocalPayload(t *testing.T) {
	t.Parallel()
	gw := &downGateway{}
	svc := newService(newMemRepo())
	svc.Payments = &payment.PayloadBuilder{Gateway: gw, PixFallback: true}

	res, err := svc.Create(context.Background(), "u1", Request{
		StoreID: "A", Items: []cart.Line{{ProductID: "x", Quantity: 2}}, ShippingAddress: address(), PaymentMethod: "pix",
	})
	require.NoError(t, err)
	require.Empty(t, res.Degraded)
	require.Equal(t, 1, gw.calls)
	require.NotNil(t, res.PaymentPayload)
	require.Equal(t, payment.SourceLocal, res.PaymentPayload.Source)

	fields, err := pix.Fields(res.PaymentPayload.PixText)
	require.NoError(t, err)
	require.Equal(t, "53.00", fields["54"])
	require.Equal(t, "LOJA A", fields["59"])
	require.NoError(t, pix.Verify(res.PaymentPayload.PixText))
}

func TestCreateCardWithoutGatewayDegradesPayment(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	gw := &downGateway{}
	svc := newService(repo)
	svc.Payments = &payment.PayloadBuilder{Gateway: gw, PixFallback: true}

	res, err := svc.Create(context.Background(), "u1", Request{
		StoreID: "A", Items: []cart.Line{{ProductID: "y", Quantity: 1}}, ShippingAddress: address(), PaymentMethod: "card",
	})
	require.NoError(t, err)
	require.Equal(t, []string{StepPayment}, res.Degraded)
	require.Nil(t, res.PaymentPayload)
	require.Contains(t, repo.orders, res.OrderID)
	require.Equal(t, 1, gw.calls)
}

type refGateway struct{ *downGateway }

func (refGateway) CreatePreference(context.Context, payment.PreferenceRequest) (payment.Preference, error) {
	return payment.Preference{PreferenceID: "pref-9", RedirectURL: "https://pay.example/pref-9"}, nil
}

func TestCreateStoresPaymentReference(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := newService(repo)
	svc.Payments = &payment.PayloadBuilder{Gateway: refGateway{&downGateway{}}}

	res, err := svc.Create(context.Background(), "u1", Request{
		StoreID: "A", Items: []cart.Line{{ProductID: "y", Quantity: 1}}, ShippingAddress: address(), PaymentMethod: "card",
	})
	require.NoError(t, err)
	require.Equal(t, "https://pay.example/pref-9", res.PaymentPayload.RedirectURL)
	require.Equal(t, "preference:pref-9", repo.refs[res.OrderID])
}

type captureGateway struct {
	*downGateway
	pref payment.PreferenceRequest
}

func (g *captureGateway) CreatePreference(_ context.Context, req payment.PreferenceRequest) (payment.Preference, error) {
	g.pref = req
	return payment.Preference{PreferenceID: "pref-1", RedirectURL: "https://pay.example/pref-1"}, nil
}

func TestCreateCardPreferenceChargesOrderTotal(t *testing.T) {
	t.Parallel()
	gw := &captureGateway{downGateway: &downGateway{}}
	svc := newService(newMemRepo())
	svc.Payments = &payment.PayloadBuilder{Gateway: gw}

	res, err := svc.Create(context.Background(), "u1", Request{
		StoreID: "A", Items: []cart.Line{{ProductID: "x", Quantity: 2}}, ShippingAddress: address(), PaymentMethod: "card",
	})
	require.NoError(t, err)
	require.Empty(t, res.Degraded)
	require.Equal(t, "53.00", res.Total)
	require.Equal(t, "8.00", gw.pref.Shipping.StringFixed(2))
	require.Equal(t, res.Total, gw.pref.Amount().StringFixed(2))
}

func TestPreviewDoesNotMutate(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	repo.carts["u1"] = []cart.Line{{ProductID: "x", Quantity: 4}, {ProductID: "y", Quantity: 2}}

	p, err := newService(repo).Preview(context.Background(), "u1", "A", nil)
	require.NoError(t, err)
	// 4 x 22.50 + 2 x 12.00 = 114.00, above the threshold.
	require.Equal(t, "114.00", p.Subtotal)
	require.Equal(t, "0.00", p.ShippingCost)
	require.Equal(t, "free_threshold", p.ShippingMode)
	require.Equal(t, "114.00", p.Total)
	require.Empty(t, repo.orders)
	require.Equal(t, 10, repo.stock("x"))
	require.Len(t, repo.carts["u1"], 2)
}
