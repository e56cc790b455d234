package registry

import (
	"encoding/json"
	"fmt"

	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
	"github.com/pagehaven/bookstore-backend/pkg/outbox/payloads"
)

// NonRetryableError marks a publish failure that retrying cannot fix, such as
// an unknown event type or an undecodable payload. The publisher routes these
// straight to the DLQ.
type NonRetryableError struct {
	Reason string
	Err    error
}

func (e *NonRetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *NonRetryableError) Unwrap() error { return e.Err }

// EventDescriptor binds an event type to its destination topic and payload
// schema.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	NewPayload    func() any
}

// ResolvedEvent is a validated, decoded outbox row ready for publishing.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	descriptors map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry wires every domain event to the order-events topic.
func NewEventRegistry(cfg config.PubSubConfig) *EventRegistry {
	topic := cfg.OrderEventsTopic
	descriptors := []EventDescriptor{
		{enums.EventOrderCreated, enums.AggregateOrder, topic, func() any { return &payloads.OrderCreatedEvent{} }},
		{enums.EventOrderPaid, enums.AggregateOrder, topic, func() any { return &payloads.OrderPaidEvent{} }},
		{enums.EventOrderPaymentFailed, enums.AggregateOrder, topic, func() any { return &payloads.PaymentFailedEvent{} }},
		{enums.EventOrderCancelled, enums.AggregateOrder, topic, func() any { return &payloads.OrderCancelledEvent{} }},
		{enums.EventOrderExpired, enums.AggregateOrder, topic, func() any { return &payloads.OrderExpiredEvent{} }},
		{enums.EventOrderRefunded, enums.AggregateOrder, topic, func() any { return &payloads.OrderCancelledEvent{} }},
		{enums.EventPaymentProofSubmitted, enums.AggregatePayment, topic, func() any { return &payloads.ProofSubmittedEvent{} }},
		{enums.EventPaymentProofReviewed, enums.AggregatePayment, topic, func() any { return &payloads.ProofReviewedEvent{} }},
		{enums.EventFulfillmentCompleted, enums.AggregateFulfillment, topic, func() any { return &payloads.FulfillmentCompletedEvent{} }},
	}
	byType := make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))
	for _, d := range descriptors {
		byType[d.EventType] = d
	}
	return &EventRegistry{descriptors: byType}
}

// Resolve looks up the descriptor and decodes the stored envelope and payload.
func (r *EventRegistry) Resolve(eventType enums.OutboxEventType, rawPayload json.RawMessage) (*ResolvedEvent, error) {
	descriptor, ok := r.descriptors[eventType]
	if !ok {
		return nil, &NonRetryableError{Reason: fmt.Sprintf("unknown event type %q", eventType)}
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(rawPayload, &envelope); err != nil {
		return nil, &NonRetryableError{Reason: "malformed payload envelope", Err: err}
	}
	payload := descriptor.NewPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, &NonRetryableError{Reason: "malformed event payload", Err: err}
	}
	return &ResolvedEvent{Descriptor: descriptor, Envelope: envelope, Payload: payload}, nil
}
