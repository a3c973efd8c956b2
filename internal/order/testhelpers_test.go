package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/toko-checkout/internal/events"
)

type memoryRepo struct {
	mu      sync.Mutex
	orders  map[string]Order
	history []HistoryEntry
}

func newMemoryRepo(orders ...Order) *memoryRepo {
	m := &memoryRepo{orders: make(map[string]Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memoryRepo) GetOrder(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *memoryRepo) ListOrders(_ context.Context, userID string, limit, offset int) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var mine []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			mine = append(mine, o)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return mine[offset:end], total, nil
}

func (m *memoryRepo) History(_ context.Context, orderID string) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryEntry
	for _, h := range m.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memoryRepo) ApplyTransition(_ context.Context, t Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[t.Entry.OrderID]
	if !ok {
		return ErrNotFound
	}
	switch t.Entry.Field {
	case FieldStatus:
		if string(o.Status) != t.Entry.OldValue {
			return ErrConflict
		}
		o.Status = Status(t.Entry.NewValue)
		if t.TrackingNumber != nil {
			o.TrackingNumber = t.TrackingNumber
		}
	case FieldPaymentStatus:
		if string(o.PaymentStatus) != t.Entry.OldValue {
			return ErrConflict
		}
		o.PaymentStatus = PaymentStatus(t.Entry.NewValue)
	}
	o.UpdatedAt = t.Entry.CreatedAt
	m.orders[o.ID] = o
	m.history = append(m.history, t.Entry)
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

var testNow = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

func pendingOrder(id, user string) Order {
	return Order{ID: id, UserID: user, StoreID: "store-1", Status: StatusPending, PaymentStatus: PaymentPending, CreatedAt: testNow}
}
