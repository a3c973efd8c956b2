package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/events"
)

// InsertDomainEvent appends an event to the outbox table.
func (s *Store) InsertDomainEvent(ctx context.Context, e events.Event) (events.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	id, err := uuidValue(e.ID)
	if err != nil {
		return events.Event{}, fmt.Errorf("event id: %w", err)
	}
	payload := string(e.Payload)
	if payload == "" {
		payload = "null"
	}
	if _, err := s.DB.Exec(ctx, `
		INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)`, id, e.Topic, e.AggregateID, payload, e.OccurredAt); err != nil {
		return events.Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return e, nil
}
