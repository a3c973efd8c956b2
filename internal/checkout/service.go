package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/promotion"
	"github.com/noah-isme/toko-checkout/internal/shipping"
)

// ErrUnauthenticated is returned when no user is attached to the checkout.
var ErrUnauthenticated = errors.New("user is required for checkout")

// Repository is the persistence boundary of checkout.
type Repository interface {
	catalog.ProductReader
	ActivePromotions(ctx context.Context, storeID string, now time.Time) ([]promotion.Promotion, error)
	ListCartLines(ctx context.Context, userID string) ([]cart.Line, error)
	// Commit stores the order and, in the same unit of work where supported,
	// applies stock and cart changes. A stock shortfall aborts the commit with
	// cart.ErrInsufficientStock; other stock or cart failures are reported in
	// CommitResult while the order is kept.
	Commit(ctx context.Context, m Mutation) (CommitResult, error)
	SetPaymentReference(ctx context.Context, orderID, reference string) error
}

// PayloadBuilder produces the customer payment payload.
type PayloadBuilder interface {
	Build(ctx context.Context, req payment.PayloadRequest) (*payment.Payload, error)
}

// Locker serialises work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Enqueuer schedules reconciliation of degraded steps.
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, task ReconcileTask) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID string, payload any) (events.Event, error)
}

// Service turns a store basket into an order.
type Service struct {
	Repo       Repository
	Stores     catalog.StoreReader
	Payments   PayloadBuilder
	Locker     Locker
	LockTTL    time.Duration
	Reconciler Enqueuer
	Events     Emitter
	Now        func() time.Time
	Logger     zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) configured() error {
	if s == nil || s.Repo == nil || s.Stores == nil {
		return errors.New("checkout service not configured")
	}
	return nil
}

type priced struct {
	store  catalog.Store
	basket cart.StoreBasket
	quote  shipping.Quote
	items  []order.Item
	order  order.Order
}

// price runs the read-only steps: store lookup, basket and shipping.
func (s *Service) price(ctx context.Context, userID, storeID string, lines []cart.Line, now time.Time) (priced, error) {
	store, err := s.Stores.GetStore(ctx, storeID)
	if err != nil {
		return priced{}, err
	}
	if len(lines) == 0 && userID != "" {
		lines, err = s.Repo.ListCartLines(ctx, userID)
		if err != nil {
			return priced{}, fmt.Errorf("load cart: %w", err)
		}
	}
	agg := cart.Aggregator{Products: s.Repo, Promotions: s.Repo, Now: func() time.Time { return now }}
	basket, err := agg.Build(ctx, store.ID, lines)
	if err != nil {
		return priced{}, err
	}
	quote := shipping.Calculate(store.Shipping, basket.Subtotal)
	if basket.FreeShipping {
		quote = shipping.Waive(quote)
	}

	p := priced{store: store, basket: basket, quote: quote}
	p.order = order.Order{
		StoreID:          store.ID,
		UserID:           userID,
		Status:           order.StatusPending,
		PaymentStatus:    order.PaymentPending,
		OriginalSubtotal: basket.OriginalSubtotal,
		Subtotal:         basket.Subtotal,
		DiscountAmount:   basket.Discount(),
		ShippingCost:     quote.Cost,
		ShippingMode:     string(quote.Mode),
		Total:            sum(basket.Subtotal, quote.Cost),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, line := range basket.Lines {
		item := order.Item{
			ID:                uuid.NewString(),
			ProductID:         line.ProductID,
			ProductName:       line.Name,
			Quantity:          line.Quantity,
			UnitPrice:         line.FinalUnitPrice,
			OriginalUnitPrice: line.UnitPrice,
			DiscountPercent:   pricing.DiscountPercent(line.UnitPrice, line.FinalUnitPrice),
			Subtotal:          line.Subtotal,
		}
		if line.Promotion != nil {
			id, name := line.Promotion.ID, line.Promotion.Name
			item.PromotionID, item.PromotionName = &id, &name
		}
		p.items = append(p.items, item)
	}
	p.order.Items = p.items
	return p, nil
}

// Preview prices a basket without creating anything.
func (s *Service) Preview(ctx context.Context, userID, storeID string, lines []cart.Line) (Preview, error) {
	if err := s.configured(); err != nil {
		return Preview{}, err
	}
	p, err := s.price(ctx, userID, storeID, lines, s.now())
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		StoreID: p.store.ID,
		Items:   viewItems(p.items),
		Totals:  totalsOf(p.order, p.quote.Unresolved()),
	}, nil
}

// Create checks out the user's basket for one store. Failures before the order
// is stored abort the checkout; later failures are reported in Result.Degraded.
func (s *Service) Create(ctx context.Context, userID string, req Request) (Result, error) {
	if err := s.configured(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return Result{}, ErrUnauthenticated
	}
	method, err := order.ParseMethod(req.PaymentMethod)
	if err != nil {
		return Result{}, common.NewAppError("BAD_REQUEST", err.Error(), http.StatusBadRequest, err)
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.store_id", req.StoreID), attribute.String("payment.method", string(method)))

	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.create(ctx, userID, method, req)
		return err
	}
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, lock.CheckoutKey(userID, req.StoreID), s.LockTTL, run)
	} else {
		err = run(ctx)
	}
	switch {
	case err != nil:
		span.RecordError(err)
		obs.Inc(obs.CheckoutTotal, outcome(err))
		return Result{}, err
	case len(res.Degraded) > 0:
		obs.Inc(obs.CheckoutTotal, "degraded")
	default:
		obs.Inc(obs.CheckoutTotal, "ok")
	}
	span.SetAttributes(attribute.String("order.id", res.OrderID))
	return res, nil
}

func (s *Service) create(ctx context.Context, userID string, method order.PaymentMethod, req Request) (Result, error) {
	now := s.now()
	p, err := s.price(ctx, userID, req.StoreID, req.Items, now)
	if err != nil {
		return Result{}, err
	}

	ord := p.order
	ord.ID = uuid.NewString()
	ord.PaymentMethod = method
	ord.ShippingAddress = req.ShippingAddress
	ord.Notes = strings.TrimSpace(req.Notes)
	for i := range ord.Items {
		ord.Items[i].OrderID = ord.ID
	}
	mutation := Mutation{Order: ord, CartUserID: userID, CartStoreID: p.store.ID}
	for _, line := range p.basket.Lines {
		mutation.CartProductIDs = append(mutation.CartProductIDs, line.ProductID)
		if line.TracksStock {
			mutation.Stock = append(mutation.Stock, StockLine{ProductID: line.ProductID, Quantity: line.Quantity})
		}
	}

	committed, err := s.Repo.Commit(ctx, mutation)
	if err != nil {
		return Result{}, err
	}
	log := s.Logger.With().Str("order_id", ord.ID).Str("store_id", ord.StoreID).Logger()
	s.emit(ctx, log, events.TopicOrderCreated, ord.ID, map[string]any{
		"orderId":       ord.ID,
		"storeId":       ord.StoreID,
		"userId":        ord.UserID,
		"total":         pricing.Format(ord.Total),
		"paymentMethod": ord.PaymentMethod,
	})

	res := Result{
		OrderID:       ord.ID,
		Status:        ord.Status,
		PaymentStatus: ord.PaymentStatus,
		PaymentMethod: ord.PaymentMethod,
		Items:         viewItems(ord.Items),
		Totals:        totalsOf(ord, p.quote.Unresolved()),
	}
	var pending []string
	if committed.StockErr != nil {
		log.Warn().Err(committed.StockErr).Str("step", StepStock).Msg("checkout step degraded")
		pending = append(pending, StepStock)
	}
	if committed.CartErr != nil {
		log.Warn().Err(committed.CartErr).Str("step", StepCart).Msg("checkout step degraded")
		pending = append(pending, StepCart)
	}
	res.Degraded = append(res.Degraded, pending...)

	if s.Payments != nil {
		payload, err := s.Payments.Build(ctx, payment.PayloadRequest{
			OrderID:    ord.ID,
			Method:     method,
			Store:      p.store,
			Total:      ord.Total,
			Items:      preferenceItems(ord.Items),
			Shipping:   ord.ShippingCost,
			PayerEmail: req.PayerEmail,
		})
		if err != nil {
			log.Error().Err(err).Str("step", StepPayment).Msg("checkout step degraded")
			res.Degraded = append(res.Degraded, StepPayment)
		} else if payload != nil {
			res.PaymentPayload = payload
			if ref := payload.StoredReference(); ref != "" {
				if err := s.Repo.SetPaymentReference(ctx, ord.ID, ref); err != nil {
					log.Warn().Err(err).Msg("store payment reference failed")
				}
			}
		}
	}

	if len(pending) > 0 && s.Reconciler != nil {
		task := ReconcileTask{OrderID: ord.ID, UserID: userID, StoreID: ord.StoreID, Steps: pending}
		if committed.StockErr != nil {
			task.Stock = mutation.Stock
		}
		if committed.CartErr != nil {
			task.ProductIDs = mutation.CartProductIDs
		}
		if err := s.Reconciler.EnqueueReconcile(ctx, task); err != nil {
			log.Error().Err(err).Strs("steps", pending).Msg("enqueue reconcile failed")
		}
	}
	for _, step := range res.Degraded {
		obs.Inc(obs.CheckoutDegradedTotal, step)
	}
	if len(res.Degraded) > 0 {
		s.emit(ctx, log, events.TopicCheckoutDegraded, ord.ID, map[string]any{"orderId": ord.ID, "steps": res.Degraded})
	}
	return res, nil
}

func (s *Service) emit(ctx context.Context, log zerolog.Logger, topic, id string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, id, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("emit checkout event failed")
	}
}

func preferenceItems(items []order.Item) []payment.PreferenceItem {
	out := make([]payment.PreferenceItem, 0, len(items))
	for _, it := range items {
		out = append(out, payment.PreferenceItem{Title: it.ProductName, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}

func outcome(err error) string {
	var lineErr *cart.LineError
	switch {
	case errors.As(err, &lineErr), common.IsAppError(err),
		errors.Is(err, catalog.ErrStoreNotFound), errors.Is(err, cart.ErrEmptyBasket),
		errors.Is(err, cart.ErrInsufficientStock), errors.Is(err, lock.ErrBusy):
		return "rejected"
	default:
		return "error"
	}
}
