package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes events to a single topic keyed by aggregate id so
// every event of one order lands on the same partition.
type KafkaNotifier struct {
	Writer MessageWriter
	Topics []string
}

// NewKafkaWriter builds a writer with hash balancing on the message key.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// Notify implements Notifier.
func (k KafkaNotifier) Notify(ctx context.Context, event Event) error {
	if k.Writer == nil {
		return nil
	}
	topics := k.Topics
	if len(topics) == 0 {
		topics = DefaultTopics()
	}
	if !slices.Contains(topics, event.Topic) {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-topic", Value: []byte(event.Topic)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	})
}
