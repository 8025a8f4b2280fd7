package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/digital-fulfillment/internal/delivery"
	"github.com/angelmondragon/digital-fulfillment/internal/resolver"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/metrics"
)

type orderResolver interface {
	Resolve(ctx context.Context, orderID string) (*resolver.OrderDetail, error)
}

type inventoryReader interface {
	HasDeliveryLog(ctx context.Context, orderID, itemID string) (bool, error)
	FindReservedCodes(ctx context.Context, orderID, itemID string) ([]models.Code, error)
	FindOfferMapping(ctx context.Context, offerID string) (*models.OfferMapping, error)
}

type reserver interface {
	Reserve(ctx context.Context, productID uuid.UUID, orderID, itemID string, quantity int) ([]models.Code, error)
}

type dispatcher interface {
	Deliver(ctx context.Context, orderID, itemID string, codes []models.Code) error
	Redeliver(ctx context.Context, orderID, itemID string, codes []models.Code) error
}

type eventStore interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]models.MarketplaceEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, now time.Time) error
	CountUnprocessed(ctx context.Context) (int64, error)
}

type recorder interface {
	IncEvent(outcome string)
	IncItem(outcome string)
	ObserveBatch(d time.Duration)
	SetBacklog(n int64)
}

type ProcessorParams struct {
	Resolver   orderResolver
	Inventory  inventoryReader
	Reserver   reserver
	Dispatcher dispatcher
	Events     eventStore
	Metrics    recorder
	Logger     *logger.Logger
	BatchSize  int
}

// Processor drives one marketplace event through resolution, reservation and
// delivery.
type Processor struct {
	resolver   orderResolver
	inventory  inventoryReader
	reserver   reserver
	dispatcher dispatcher
	events     eventStore
	metrics    recorder
	logg       *logger.Logger
	batchSize  int
	now        func() time.Time
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Resolver == nil {
		return nil, errors.New("order resolver is required")
	}
	if params.Inventory == nil {
		return nil, errors.New("inventory reader is required")
	}
	if params.Reserver == nil {
		return nil, errors.New("reservation engine is required")
	}
	if params.Dispatcher == nil {
		return nil, errors.New("delivery dispatcher is required")
	}
	if params.Events == nil {
		return nil, errors.New("event store is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewFulfillmentMetrics(nil)
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = DefaultSchedule().BatchSize
	}
	return &Processor{
		resolver:   params.Resolver,
		inventory:  params.Inventory,
		reserver:   params.Reserver,
		dispatcher: params.Dispatcher,
		events:     params.Events,
		metrics:    m,
		logg:       params.Logger,
		batchSize:  batch,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// ProcessBatch handles up to one batch of unprocessed events in order. A failed
// event is logged and left for the next pass; it never stops the batch.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	started := time.Now()
	pending, err := p.events.FetchUnprocessed(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unprocessed events: %w", err)
	}

	for _, event := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := p.ProcessEvent(ctx, event); err != nil {
			p.metrics.IncEvent(metrics.EventRetry)
			p.logg.Error(p.eventContext(ctx, event), "event left unprocessed", err)
			continue
		}
		p.metrics.IncEvent(metrics.EventProcessed)
	}

	if len(pending) == 0 {
		p.metrics.SetBacklog(0)
		return 0, nil
	}
	p.metrics.ObserveBatch(time.Since(started))
	if backlog, err := p.events.CountUnprocessed(ctx); err != nil {
		p.logg.WarnErr(ctx, "count event backlog", err)
	} else {
		p.metrics.SetBacklog(backlog)
	}
	return len(pending), nil
}

// ProcessEvent fulfills every digital item of the event's order and marks the
// event processed once all items reached a terminal outcome. Any returned
// error means the event stays unprocessed.
func (p *Processor) ProcessEvent(ctx context.Context, event models.MarketplaceEvent) error {
	ctx = p.eventContext(ctx, event)

	detail, err := p.resolver.Resolve(ctx, event.OrderID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			p.logg.WarnErr(ctx, "order not found in marketplace; event closed", err)
			return p.markProcessed(ctx, event)
		}
		return fmt.Errorf("resolve order %s: %w", event.OrderID, err)
	}

	if reason := detail.SkipReason(); reason != "" {
		p.logg.Info(p.logg.WithField(ctx, "reason", reason), "order not actionable; event closed")
		return p.markProcessed(ctx, event)
	}

	var errs error
	for _, item := range detail.DigitalItems {
		outcome, err := p.processItem(ctx, detail.OrderID, item)
		p.metrics.IncItem(outcome)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("item %s: %w", item.ID, err))
		}
	}
	if errs != nil {
		return errs
	}
	return p.markProcessed(ctx, event)
}

func (p *Processor) processItem(ctx context.Context, orderID string, item resolver.Item) (string, error) {
	if strings.TrimSpace(item.ID) == "" {
		p.logg.Warn(p.logg.WithField(ctx, "offer_id", item.OfferID), "order item has no id; skipping item")
		return metrics.OutcomeSkipped, nil
	}
	ctx = p.logg.WithOrderItem(ctx, orderID, item.ID)

	delivered, err := p.inventory.HasDeliveryLog(ctx, orderID, item.ID)
	if err != nil {
		return metrics.OutcomeError, fmt.Errorf("check delivery log: %w", err)
	}
	if delivered {
		p.logg.Info(ctx, "order item already delivered; skipping")
		return metrics.OutcomeAlreadyDelivered, nil
	}

	reserved, err := p.inventory.FindReservedCodes(ctx, orderID, item.ID)
	if err != nil {
		return metrics.OutcomeError, fmt.Errorf("load reserved codes: %w", err)
	}
	if len(reserved) > 0 {
		p.logg.Warn(p.logg.WithField(ctx, "reserved", len(reserved)), "resuming interrupted delivery with existing reservation")
		return p.outcome(ctx, p.dispatcher.Redeliver(ctx, orderID, item.ID, reserved), metrics.OutcomeRecovered)
	}

	mapping, err := p.inventory.FindOfferMapping(ctx, item.OfferID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			p.logg.Warn(p.logg.WithField(ctx, "offer_id", item.OfferID), "offer is not mapped to a product; skipping item")
			return metrics.OutcomeSkipped, nil
		}
		return metrics.OutcomeError, fmt.Errorf("resolve offer %s: %w", item.OfferID, err)
	}

	codes, err := p.reserver.Reserve(ctx, mapping.ProductID, orderID, item.ID, item.Quantity)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
			return metrics.OutcomeInsufficientStock, nil
		}
		return metrics.OutcomeError, fmt.Errorf("reserve codes: %w", err)
	}

	return p.outcome(ctx, p.dispatcher.Deliver(ctx, orderID, item.ID, codes), metrics.OutcomeDelivered)
}

// outcome maps a dispatcher result onto an item outcome. DELIVERY_FAILED must
// be checked before any upstream code it wraps.
func (p *Processor) outcome(ctx context.Context, err error, success string) (string, error) {
	switch {
	case err == nil:
		p.logg.Info(ctx, "order item delivered")
		return success, nil
	case errors.Is(err, delivery.ErrAlreadyDelivered):
		return metrics.OutcomeAlreadyDelivered, nil
	case errors.Is(err, delivery.ErrReservationHeld):
		return metrics.OutcomeHeld, nil
	case pkgerrors.HasCode(err, pkgerrors.CodeDeliveryFailed):
		return metrics.OutcomeDeliveryFailed, nil
	default:
		return metrics.OutcomeError, err
	}
}

func (p *Processor) markProcessed(ctx context.Context, event models.MarketplaceEvent) error {
	if err := p.events.MarkProcessed(ctx, event.ID, p.now()); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (p *Processor) eventContext(ctx context.Context, event models.MarketplaceEvent) context.Context {
	ctx = p.logg.WithEventID(ctx, event.ID.String())
	return p.logg.WithOrderID(ctx, event.OrderID)
}
