package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the order does not exist or is not visible to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned for moves the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when the stored value changed under a concurrent update.
	ErrConflict = errors.New("order changed concurrently")
	// ErrTrackingNotAllowed is returned when a tracking number accompanies a non-shipping move.
	ErrTrackingNotAllowed = errors.New("tracking number only accepted when shipping")
)

var next = map[Status]Status{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether from may move to to: one step forward along
// the fulfilment chain, or to cancelled from any non-terminal state.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return next[from] == to
}

// CanTransitionPayment reports whether a payment status move is allowed.
func CanTransitionPayment(from, to PaymentStatus) bool {
	switch from {
	case PaymentPending:
		return to == PaymentPaid || to == PaymentFailed || to == PaymentRefunded
	case PaymentPaid:
		return to == PaymentRefunded
	default:
		return false
	}
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// ParsePaymentStatus validates a payment status name.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return st, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// ParseMethod validates a payment method name.
func ParseMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodPix, MethodCard, MethodCashOnDelivery, MethodManual:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}
