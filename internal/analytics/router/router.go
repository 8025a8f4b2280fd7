package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/digital-fulfillment/internal/analytics/types"
	"github.com/angelmondragon/digital-fulfillment/internal/analytics/writer"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/payloads"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported fulfillment event type")

// Writer delivers BigQuery rows produced by the router.
type Writer interface {
	InsertEvent(ctx context.Context, row types.FulfillmentEventRow) error
}

// Router decodes fulfillment envelopes and projects them onto analytics rows.
type Router struct {
	writer   Writer
	decoders *registry.DecoderRegistry
	logg     *logger.Logger
}

func NewRouter(w Writer, decoders *registry.DecoderRegistry, logg *logger.Logger) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if decoders == nil {
		return nil, errors.New("decoder registry is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{writer: w, decoders: decoders, logg: logg}, nil
}

// Handle decodes the envelope payload for its version and writes one row.
// Decode failures are wrapped as registry.NonRetryableError.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	if !envelope.EventType.IsValid() {
		return registry.NewNonRetryableError(fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType))
	}
	if len(envelope.Payload) == 0 {
		return registry.NewNonRetryableError(fmt.Errorf("empty payload for %s", envelope.EventType))
	}

	version := envelope.Version
	if version <= 0 {
		version = 1
	}
	decoded, err := r.decoders.Decode(envelope.EventType, version, envelope.Payload)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			return err
		}
		return registry.NewNonRetryableError(fmt.Errorf("decode %s payload: %w", envelope.EventType, err))
	}

	row, err := project(envelope, decoded)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}

	logCtx := r.logg.WithOrderItem(ctx, row.OrderID, row.ItemID)
	if err := r.writer.InsertEvent(logCtx, row); err != nil {
		r.logg.Error(logCtx, "failed to insert fulfillment row", err)
		return err
	}
	r.logg.Debug(logCtx, "fulfillment row written")
	return nil
}

func project(envelope types.Envelope, decoded any) (types.FulfillmentEventRow, error) {
	payloadJSON, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.FulfillmentEventRow{}, err
	}
	row := types.FulfillmentEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt.UTC(),
		Payload:       payloadJSON,
	}

	switch event := decoded.(type) {
	case *payloads.ItemDeliveredEvent:
		row.OrderID = event.OrderID
		row.ItemID = event.ItemID
		row.ProductID = nullUUID(event.ProductID.String())
		row.Quantity = int64(event.CodesSent)
		row.Degraded = event.Degraded
		row.Recovered = event.Recovered
	case *payloads.ItemDeliveryFailedEvent:
		row.OrderID = event.OrderID
		row.ItemID = event.ItemID
		row.ProductID = nullUUID(event.ProductID.String())
		row.Quantity = int64(event.ReleasedCodes + event.HeldCodes)
		row.Recovered = event.Recovered
		row.Reason = nullString(event.Reason)
	case *payloads.StockShortageEvent:
		row.OrderID = event.OrderID
		row.ItemID = event.ItemID
		row.ProductID = nullUUID(event.ProductID.String())
		row.Quantity = int64(event.Requested)
		row.Available.Int64 = int64(event.Available)
		row.Available.Valid = true
	default:
		return types.FulfillmentEventRow{}, fmt.Errorf("%w: payload %T", ErrUnsupportedEventType, decoded)
	}
	return row, nil
}
