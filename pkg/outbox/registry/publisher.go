package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox"
)

// EventDescriptor says where an event type is published.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry validates outbox rows against the catalog before publishing.
type EventRegistry struct {
	descriptors map[enums.OutboxEventType]EventDescriptor
	decoders    *DecoderRegistry
}

// NewEventRegistry routes every fulfillment event to the one configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.FulfillmentTopic)
	if topic == "" {
		return nil, errors.New("fulfillment topic is required")
	}
	reg := &EventRegistry{
		descriptors: make(map[enums.OutboxEventType]EventDescriptor, len(catalog)),
		decoders:    NewFulfillmentDecoders(),
	}
	for _, k := range catalog {
		reg.descriptors[k.eventType] = EventDescriptor{EventType: k.eventType, AggregateType: k.aggregate, Topic: topic}
	}
	return reg, nil
}

// Resolve checks the row's type, aggregate and payload. Every failure is
// non-retryable: a malformed row never becomes publishable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.descriptors[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	case strings.TrimSpace(event.AggregateID) == "":
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.Open(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
