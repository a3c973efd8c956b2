package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/promotion"
	"github.com/noah-isme/toko-checkout/internal/shipping"
)

var testNow = time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int { return &v }

type memRepo struct {
	mu        sync.Mutex
	products  map[string]catalog.Product
	promos    map[string][]promotion.Promotion
	carts     map[string][]cart.Line
	orders    map[string]order.Order
	movements map[string]bool
	refs      map[string]string
	stockErr  error
	cartErr   error
	commitErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		products: map[string]catalog.Product{
			"x":  {ID: "x", StoreID: "A", Name: "Caneca", Price: dec("25.00"), Stock: intPtr(10), Active: true},
			"y":  {ID: "y", StoreID: "A", Name: "Poster", Price: dec("12.00"), Active: true},
			"b1": {ID: "b1", StoreID: "B", Name: "Livro", Price: dec("70.00"), Stock: intPtr(3), Active: true},
		},
		promos: map[string][]promotion.Promotion{
			"A": {{
				ID: "promo-x", StoreID: "A", Name: "Dez por cento", ProductIDs: []string{"x"},
				Discount: pricing.Percentage(dec("10")), Active: true,
				StartsAt: testNow.Add(-time.Hour), EndsAt: testNow.Add(time.Hour), CreatedAt: testNow.Add(-time.Hour),
			}},
		},
		carts:     map[string][]cart.Line{},
		orders:    map[string]order.Order{},
		movements: map[string]bool{},
		refs:      map[string]string{},
	}
}

func (m *memRepo) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *memRepo) ActivePromotions(_ context.Context, storeID string, _ time.Time) ([]promotion.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promos[storeID], nil
}

func (m *memRepo) ListCartLines(_ context.Context, userID string) ([]cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cart.Line(nil), m.carts[userID]...), nil
}

func (m *memRepo) Commit(_ context.Context, mut Mutation) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return CommitResult{}, m.commitErr
	}
	for _, s := range mut.Stock {
		if p := m.products[s.ProductID]; !p.HasStock(s.Quantity) {
			return CommitResult{}, &cart.LineError{ProductID: s.ProductID, Err: cart.ErrInsufficientStock}
		}
	}
	m.orders[mut.Order.ID] = mut.Order
	var res CommitResult
	if m.stockErr != nil {
		res.StockErr = m.stockErr
	} else {
		m.decrementLocked(mut.Order.ID, mut.Stock)
	}
	if m.cartErr != nil {
		res.CartErr = m.cartErr
	} else {
		m.deleteLocked(mut.CartUserID, mut.CartStoreID, mut.CartProductIDs)
	}
	return res, nil
}

func (m *memRepo) decrementLocked(orderID string, lines []StockLine) {
	for _, s := range lines {
		key := orderID + "|" + s.ProductID
		if m.movements[key] {
			continue
		}
		p := m.products[s.ProductID]
		left := *p.Stock - s.Quantity
		p.Stock = &left
		m.products[s.ProductID] = p
		m.movements[key] = true
	}
}

func (m *memRepo) deleteLocked(userID, storeID string, productIDs []string) {
	drop := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		drop[id] = true
	}
	var kept []cart.Line
	for _, l := range m.carts[userID] {
		if drop[l.ProductID] && m.products[l.ProductID].StoreID == storeID {
			continue
		}
		kept = append(kept, l)
	}
	m.carts[userID] = kept
}

func (m *memRepo) DecrementStock(_ context.Context, orderID string, lines []StockLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range lines {
		if m.movements[orderID+"|"+s.ProductID] {
			continue
		}
		if p := m.products[s.ProductID]; !p.HasStock(s.Quantity) {
			return &cart.LineError{ProductID: s.ProductID, Err: cart.ErrInsufficientStock}
		}
	}
	m.decrementLocked(orderID, lines)
	return nil
}

func (m *memRepo) DeleteCartLines(_ context.Context, userID, storeID string, productIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(userID, storeID, productIDs)
	return nil
}

func (m *memRepo) SetPaymentReference(_ context.Context, orderID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[orderID] = ref
	return nil
}

func (m *memRepo) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.products[id].Stock
}

type stubStores map[string]catalog.Store

func (s stubStores) GetStore(_ context.Context, id string) (catalog.Store, error) {
	st, ok := s[id]
	if !ok {
		return catalog.Store{}, catalog.ErrStoreNotFound
	}
	return st, nil
}

func testStores() stubStores {
	return stubStores{
		"A": {ID: "A", Name: "Loja A", City: "Recife", PixKey: "pix@loja-a.com.br",
			Shipping: shipping.Settings{FixedPrice: decPtr("8.00"), FreeThreshold: decPtr("100.00")}},
		"B": {ID: "B", Name: "Sebo B", City: "Olinda", Shipping: shipping.Settings{NegotiateExternally: true}},
	}
}

type captureQueue struct {
	mu    sync.Mutex
	tasks []ReconcileTask
}

func (c *captureQueue) EnqueueReconcile(_ context.Context, t ReconcileTask) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, t)
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic, id string, _ any) (events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return events.Event{Topic: topic, AggregateID: id}, nil
}

func newService(repo *memRepo) *Service {
	return &Service{
		Repo:   repo,
		Stores: testStores(),
		Now:    func() time.Time { return testNow },
	}
}

func address() order.Address {
	return order.Address{Recipient: "Ana", Street: "Rua A", Number: "10", City: "Recife", State: "PE", PostalCode: "50000-000"}
}
