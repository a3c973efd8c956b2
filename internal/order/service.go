package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// Repository persists orders and their history.
type Repository interface {
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]Order, int, error)
	History(ctx context.Context, orderID string) ([]HistoryEntry, error)
	// ApplyTransition updates the field only if it still holds t.From and
	// appends the history entry in the same unit of work. It returns
	// ErrConflict when the stored value differs.
	ApplyTransition(ctx context.Context, t Transition) error
}

// Transition is a validated change of one status field.
type Transition struct {
	Entry          HistoryEntry
	TrackingNumber *string
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID string, payload any) (events.Event, error)
}

// Service applies order and payment status transitions.
type Service struct {
	Repo   Repository
	Events Emitter
	Now    func() time.Time
	Logger zerolog.Logger
	// OnCancel runs after an order is cancelled, e.g. to release a pending gateway payment.
	OnCancel func(ctx context.Context, o Order)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	if s == nil || s.Repo == nil {
		return Order{}, errors.New("order service not configured")
	}
	return s.Repo.GetOrder(ctx, id)
}

// Advance moves the order to status to. A tracking number is only accepted when shipping.
func (s *Service) Advance(ctx context.Context, orderID string, to Status, actor, note string, tracking *string) (Order, error) {
	if s == nil || s.Repo == nil {
		return Order{}, errors.New("order service not configured")
	}
	if tracking != nil {
		trimmed := strings.TrimSpace(*tracking)
		if trimmed == "" {
			tracking = nil
		} else {
			tracking = &trimmed
		}
	}
	if tracking != nil && to != StatusShipped {
		return Order{}, ErrTrackingNotAllowed
	}
	current, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(current.Status, to) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}
	entry := s.entry(orderID, FieldStatus, actor, string(current.Status), string(to), note)
	if err := s.Repo.ApplyTransition(ctx, Transition{Entry: entry, TrackingNumber: tracking}); err != nil {
		return Order{}, err
	}
	current.Status = to
	current.UpdatedAt = entry.CreatedAt
	if tracking != nil {
		current.TrackingNumber = tracking
	}
	s.publish(ctx, events.TopicOrderStatusChanged, entry)
	if to == StatusCancelled && s.OnCancel != nil {
		s.OnCancel(ctx, current)
	}
	return current, nil
}

// SetPaymentStatus moves the payment status of an order.
func (s *Service) SetPaymentStatus(ctx context.Context, orderID string, to PaymentStatus, actor, note string) (Order, error) {
	if s == nil || s.Repo == nil {
		return Order{}, errors.New("order service not configured")
	}
	current, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if current.PaymentStatus == to {
		return current, nil
	}
	if !CanTransitionPayment(current.PaymentStatus, to) {
		return Order{}, fmt.Errorf("%w: payment %s to %s", ErrInvalidTransition, current.PaymentStatus, to)
	}
	entry := s.entry(orderID, FieldPaymentStatus, actor, string(current.PaymentStatus), string(to), note)
	if err := s.Repo.ApplyTransition(ctx, Transition{Entry: entry}); err != nil {
		return Order{}, err
	}
	current.PaymentStatus = to
	current.UpdatedAt = entry.CreatedAt
	s.publish(ctx, events.TopicPaymentStatusChanged, entry)
	return current, nil
}

// History returns the append-only change log for an order, oldest first.
func (s *Service) History(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("order service not configured")
	}
	return s.Repo.History(ctx, orderID)
}

// List returns a page of the user's orders and the total count.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Order, int, error) {
	if s == nil || s.Repo == nil {
		return nil, 0, errors.New("order service not configured")
	}
	return s.Repo.ListOrders(ctx, userID, limit, offset)
}

func (s *Service) entry(orderID string, field Field, actor, from, to, note string) HistoryEntry {
	if strings.TrimSpace(actor) == "" {
		actor = "system"
	}
	return HistoryEntry{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Field:     field,
		Actor:     actor,
		OldValue:  from,
		NewValue:  to,
		Note:      strings.TrimSpace(note),
		CreatedAt: s.now(),
	}
}

func (s *Service) publish(ctx context.Context, topic string, entry HistoryEntry) {
	obs.Inc(obs.OrderTransitionTotal, string(entry.Field), entry.NewValue)
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, entry.OrderID, entry); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", entry.OrderID).Str("topic", topic).Msg("emit order event failed")
	}
}
