package worker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/digital-fulfillment/internal/analytics/types"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/registry"
)

// consumerName scopes idempotency claims so another consumer of the same
// topic keeps its own record.
const consumerName = "analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// verdict is what happens to a message once process returns.
type verdict int

const (
	ack verdict = iota
	nack
)

// Service drains the fulfillment subscription into the analytics handler,
// claiming each event id first so redeliveries are written once.
type Service struct {
	subscription receiver
	handler      Handler
	manager      claimer
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, manager claimer, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("fulfillment subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case manager == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, manager: manager, logg: logg}, nil
}

// Run blocks in Receive until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.process(ctx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process acks anything that can never succeed (bad envelope, duplicate,
// non-retryable handler error) and nacks transient failures. A claim taken
// before a transient failure is released so the redelivery can retake it.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	env, err := buildEnvelope(msg)
	if err != nil {
		s.logg.WarnErr(ctx, "dropping malformed fulfillment message", err)
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   env.EventType,
		"aggregate_id": env.AggregateID,
	})

	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		s.logg.WarnErr(ctx, "dropping message with non-uuid event id", err)
		return ack
	}

	claimed, err := s.manager.Claim(ctx, consumerName, eventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "idempotency claim failed", err)
		return nack
	case !claimed:
		s.logg.Debug(ctx, "event already recorded")
		return ack
	}

	err = s.handler.Handle(ctx, *env)
	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		s.logg.Info(ctx, "fulfillment event recorded")
		return ack
	case errors.As(err, &permanent):
		s.logg.WarnErr(ctx, "fulfillment event dropped", err)
		return ack
	}

	s.logg.Error(ctx, "analytics handler failed", err)
	if relErr := s.manager.Release(ctx, consumerName, eventID); relErr != nil {
		s.logg.WarnErr(ctx, "failed to release idempotency claim", relErr)
	}
	return nack
}

// buildEnvelope merges the stored envelope with the message attributes. The
// attributes carry routing fields; the body wins for id and time when set.
func buildEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	stored, err := outbox.Open(msg.Data)
	if err != nil {
		return nil, err
	}
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	eventID := cmp.Or(strings.TrimSpace(stored.EventID), attr("event_id"))
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}
	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		occurredAt, _ = time.Parse(time.RFC3339Nano, attr("created_at"))
	}

	return &types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       stored.Version,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
