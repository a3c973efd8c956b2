package events

// Topic constants for domain events emitted by checkout.
const (
	TopicOrderCreated         = "order.created"
	TopicOrderStatusChanged   = "order.status_changed"
	TopicPaymentStatusChanged = "payment.status_changed"
	TopicCheckoutDegraded     = "checkout.degraded"
)

// DefaultTopics returns the topics published to the broker.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderStatusChanged,
		TopicPaymentStatusChanged,
		TopicCheckoutDegraded,
	}
}
