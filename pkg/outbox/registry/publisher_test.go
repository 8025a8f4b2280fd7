package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	codeID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventItemDelivered,
		AggregateType: enums.AggregateMarketplaceOrder,
		AggregateID:   "order-1",
		Payload: mustEnvelope(t, mustMarshal(t, payloads.ItemDeliveredEvent{
			OrderID: "order-1",
			ItemID:  "5001",
			CodeIDs: []uuid.UUID{codeID},
		})),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "fulfillment-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.ItemDeliveredEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ItemID != "5001" || len(payload.CodeIDs) != 1 || payload.CodeIDs[0] != codeID {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope incomplete %+v", resolved.Envelope)
	}
}

func TestEventRegistryRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     "something_else",
			AggregateType: enums.AggregateMarketplaceOrder,
			AggregateID:   "order-1",
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventStockShortage,
			AggregateType: enums.AggregateMarketplaceOrder,
			AggregateID:   "order-1",
			Payload:       mustEnvelope(t, []byte(`{"orderId":"order-1"}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventItemDeliveryFailed,
			AggregateType: enums.AggregateMarketplaceOrder,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventItemDelivered,
			AggregateType: enums.AggregateMarketplaceOrder,
			AggregateID:   "order-1",
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"unknown version": {
			EventType:     enums.EventItemDelivered,
			AggregateType: enums.AggregateMarketplaceOrder,
			AggregateID:   "order-1",
			Payload:       json.RawMessage(`{"version":9,"eventId":"e","data":{"orderId":"order-1"}}`),
		},
		"payload does not fit schema": {
			EventType:     enums.EventStockShortage,
			AggregateType: enums.AggregateProduct,
			AggregateID:   "product-1",
			Payload:       mustEnvelope(t, []byte(`{"requested":"two"}`)),
		},
		"broken envelope": {
			EventType:     enums.EventItemDelivered,
			AggregateType: enums.AggregateMarketplaceOrder,
			AggregateID:   "order-1",
			Payload:       json.RawMessage(`{"data":`),
		},
	}

	for name, event := range cases {
		_, err := reg.Resolve(event)
		var nonRetry NonRetryableError
		if !errors.As(err, &nonRetry) {
			t.Fatalf("%s: expected non-retryable error, got %v", name, err)
		}
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected missing topic error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{FulfillmentTopic: "fulfillment-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
