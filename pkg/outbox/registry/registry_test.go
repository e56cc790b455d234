package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
	"github.com/pagehaven/bookstore-backend/pkg/outbox/payloads"
)

func TestResolveDecodesKnownEvent(t *testing.T) {
	reg := NewEventRegistry(config.PubSubConfig{OrderEventsTopic: "ph-order-events"})

	owner := int64(4)
	data, err := json.Marshal(payloads.OrderCreatedEvent{OrderID: 11, OrderNumber: "ORD-1-XY99", UserID: &owner, ItemCount: 1})
	require.NoError(t, err)
	raw, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: "evt-1", Data: data})
	require.NoError(t, err)

	resolved, err := reg.Resolve(enums.EventOrderCreated, raw)
	require.NoError(t, err)
	require.Equal(t, "ph-order-events", resolved.Descriptor.Topic)

	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok)
	require.Equal(t, int64(11), payload.OrderID)
}

func TestResolveUnknownEventIsNonRetryable(t *testing.T) {
	reg := NewEventRegistry(config.PubSubConfig{OrderEventsTopic: "ph-order-events"})

	_, err := reg.Resolve(enums.OutboxEventType("inventory.synced"), json.RawMessage(`{}`))
	require.Error(t, err)
	var nonRetryable *NonRetryableError
	require.True(t, errors.As(err, &nonRetryable))
}

func TestResolveMalformedEnvelopeIsNonRetryable(t *testing.T) {
	reg := NewEventRegistry(config.PubSubConfig{OrderEventsTopic: "ph-order-events"})

	_, err := reg.Resolve(enums.EventOrderPaid, json.RawMessage(`{not json`))
	var nonRetryable *NonRetryableError
	require.True(t, errors.As(err, &nonRetryable))
}
