package payment

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pix"
)

type orderRepo struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func newOrderRepo(orders ...order.Order) *orderRepo {
	r := &orderRepo{orders: make(map[string]order.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *orderRepo) GetOrder(_ context.Context, id string) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (r *orderRepo) ListOrders(context.Context, string, int, int) ([]order.Order, int, error) {
	return nil, 0, nil
}

func (r *orderRepo) SetPaymentReference(_ context.Context, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentReference = ref
	r.orders[id] = o
	return nil
}

func (r *orderRepo) History(context.Context, string) ([]order.HistoryEntry, error) { return nil, nil }

func (r *orderRepo) ApplyTransition(_ context.Context, t order.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[t.Entry.OrderID]
	if !ok {
		return order.ErrNotFound
	}
	switch t.Entry.Field {
	case order.FieldStatus:
		if string(o.Status) != t.Entry.OldValue {
			return order.ErrConflict
		}
		o.Status = order.Status(t.Entry.NewValue)
	case order.FieldPaymentStatus:
		if string(o.PaymentStatus) != t.Entry.OldValue {
			return order.ErrConflict
		}
		o.PaymentStatus = order.PaymentStatus(t.Entry.NewValue)
	}
	r.orders[o.ID] = o
	return nil
}

type stubStores map[string]catalog.Store

func (s stubStores) GetStore(_ context.Context, id string) (catalog.Store, error) {
	st, ok := s[id]
	if !ok {
		return catalog.Store{}, catalog.ErrStoreNotFound
	}
	return st, nil
}

type stubGateway struct {
	mu        sync.Mutex
	charge    PixCharge
	chargeErr error
	pref      Preference
	prefErr   error
	prefReq   PreferenceRequest
	payments  map[string]GatewayPayment
	cancelled []string
	calls     int
}

func (g *stubGateway) CreatePixCharge(context.Context, PixChargeRequest) (PixCharge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.charge, g.chargeErr
}

func (g *stubGateway) CreatePreference(_ context.Context, req PreferenceRequest) (Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prefReq = req
	return g.pref, g.prefErr
}

func (g *stubGateway) GetPayment(_ context.Context, id string) (GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return GatewayPayment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (g *stubGateway) CancelPayment(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return nil
}

var testStore = catalog.Store{ID: "store-1", Name: "Loja da Ana", City: "Recife", PixKey: "pix@loja.com.br"}

func pixOrder(id, user string) order.Order {
	return order.Order{
		ID:            id,
		UserID:        user,
		StoreID:       testStore.ID,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		PaymentMethod: order.MethodPix,
		Total:         decimal.RequireFromString("53.00"),
		CreatedAt:     time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
	}
}

func gatewayQR() string {
	code, err := pix.Encode(pix.Payload{Key: "gw-key", Amount: decimal.NewFromInt(53), MerchantName: "Gateway", MerchantCity: "Sao Paulo"})
	if err != nil {
		panic(err)
	}
	return code
}
