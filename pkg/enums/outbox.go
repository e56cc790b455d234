package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregatePayment     OutboxAggregateType = "payment"
	AggregateFulfillment OutboxAggregateType = "fulfillment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateFulfillment,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order.created"
	EventOrderPaid             OutboxEventType = "order.paid"
	EventOrderPaymentFailed    OutboxEventType = "order.payment_failed"
	EventOrderCancelled        OutboxEventType = "order.cancelled"
	EventOrderExpired          OutboxEventType = "order.expired"
	EventOrderRefunded         OutboxEventType = "order.refunded"
	EventPaymentProofSubmitted OutboxEventType = "payment.proof_submitted"
	EventPaymentProofReviewed  OutboxEventType = "payment.proof_reviewed"
	EventFulfillmentCompleted  OutboxEventType = "fulfillment.completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderCancelled,
	EventOrderExpired,
	EventOrderRefunded,
	EventPaymentProofSubmitted,
	EventPaymentProofReviewed,
	EventFulfillmentCompleted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
