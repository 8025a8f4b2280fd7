package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/digital-fulfillment/internal/inventory"
	"github.com/angelmondragon/digital-fulfillment/internal/marketplace"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/payloads"
)

// ErrAlreadyDelivered reports that a concurrent worker logged the item first.
var ErrAlreadyDelivered = pkgerrors.New(pkgerrors.CodeConflict, "order item already delivered")

// ErrReservationHeld reports a recovered delivery the marketplace rejected.
// The first attempt may have reached the buyer, so the codes stay reserved
// for manual reconciliation.
var ErrReservationHeld = pkgerrors.New(pkgerrors.CodeStateConflict, "recovered delivery unconfirmed; reservation held")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Marketplace is the remote side of a delivery.
type Marketplace interface {
	DeliverDigitalGoods(ctx context.Context, orderID string, item marketplace.DeliveryItem) error
	MaxCodesPerItem() int
}

type degradedRecorder interface {
	IncDegraded()
}

type Dispatcher struct {
	tx      txRunner
	repo    *inventory.Repository
	remote  Marketplace
	outbox  outboxPublisher
	metrics degradedRecorder
	logg    *logger.Logger
	now     func() time.Time
}

func NewDispatcher(tx txRunner, repo *inventory.Repository, remote Marketplace, publisher outboxPublisher, metrics degradedRecorder, logg *logger.Logger) (*Dispatcher, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if remote == nil {
		return nil, fmt.Errorf("marketplace client required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{
		tx:      tx,
		repo:    repo,
		remote:  remote,
		outbox:  publisher,
		metrics: metrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Deliver pushes freshly reserved codes to the marketplace and commits or
// releases the reservation depending on the outcome.
func (d *Dispatcher) Deliver(ctx context.Context, orderID, itemID string, codes []models.Code) error {
	return d.deliver(ctx, orderID, itemID, codes, false)
}

// Redeliver re-sends codes left reserved by an interrupted run. The commit is
// identical to Deliver. A remote failure never releases the codes and
// returns ErrReservationHeld.
func (d *Dispatcher) Redeliver(ctx context.Context, orderID, itemID string, codes []models.Code) error {
	return d.deliver(ctx, orderID, itemID, codes, true)
}

func (d *Dispatcher) deliver(ctx context.Context, orderID, itemID string, codes []models.Code, recovered bool) error {
	if len(codes) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no codes to deliver")
	}
	ctx = d.logg.WithOrderItem(ctx, orderID, itemID)

	sent := d.codesToSend(ctx, codes)
	texts := make([]string, len(sent))
	for i, code := range sent {
		texts[i] = code.CodeText
	}

	remoteErr := d.remote.DeliverDigitalGoods(ctx, orderID, marketplace.DeliveryItem{
		ItemID:       json.Number(itemID),
		DigitalCodes: texts,
	})
	if remoteErr != nil {
		if recovered {
			return d.hold(ctx, orderID, itemID, codes, remoteErr)
		}
		return d.release(ctx, orderID, itemID, codes[0].ProductID, remoteErr)
	}

	err := d.commit(ctx, orderID, itemID, codes, len(sent), recovered)
	if errors.Is(err, inventory.ErrDeliveryLogExists) {
		if _, relErr := d.repo.ReleaseCodes(ctx, orderID, itemID, d.now()); relErr != nil {
			return fmt.Errorf("release codes after losing delivery race: %w", relErr)
		}
		d.logg.Warn(ctx, "order item delivered by another worker; released own reservation")
		return ErrAlreadyDelivered
	}
	return err
}

func (d *Dispatcher) codesToSend(ctx context.Context, codes []models.Code) []models.Code {
	limit := d.remote.MaxCodesPerItem()
	if limit <= 0 || len(codes) <= limit {
		return codes
	}
	d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
		"reserved": len(codes),
		"accepted": limit,
	}), "marketplace accepts fewer codes per item than reserved; sending the first")
	if d.metrics != nil {
		d.metrics.IncDegraded()
	}
	return codes[:limit]
}

func (d *Dispatcher) commit(ctx context.Context, orderID, itemID string, codes []models.Code, sent int, recovered bool) error {
	now := d.now()
	ids := make([]uuid.UUID, len(codes))
	for i, code := range codes {
		ids[i] = code.ID
	}

	return d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)

		updated, err := repo.MarkDelivered(ctx, ids, orderID, itemID, now)
		if err != nil {
			return fmt.Errorf("mark codes delivered: %w", err)
		}
		if updated != int64(len(ids)) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "expected %d reserved codes, updated %d", len(ids), updated)
		}

		if err := repo.InsertDeliveryLog(ctx, &models.DeliveryLog{
			OrderID: orderID,
			ItemID:  itemID,
			CodeID:  ids[0],
		}); err != nil {
			return err
		}

		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventItemDelivered,
			AggregateType: enums.AggregateMarketplaceOrder,
			AggregateID:   orderID,
			OccurredAt:    now,
			Data: payloads.ItemDeliveredEvent{
				OrderID:     orderID,
				ItemID:      itemID,
				ProductID:   codes[0].ProductID,
				CodeIDs:     ids,
				CodesSent:   sent,
				Degraded:    sent < len(codes),
				Recovered:   recovered,
				DeliveredAt: now,
			},
		})
	})
}

func (d *Dispatcher) release(ctx context.Context, orderID, itemID string, productID uuid.UUID, cause error) error {
	now := d.now()
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		released, err := d.repo.WithTx(tx).ReleaseCodes(ctx, orderID, itemID, now)
		if err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventItemDeliveryFailed,
			AggregateType: enums.AggregateMarketplaceOrder,
			AggregateID:   orderID,
			OccurredAt:    now,
			Data: payloads.ItemDeliveryFailedEvent{
				OrderID:       orderID,
				ItemID:        itemID,
				ProductID:     productID,
				ReleasedCodes: int(released),
				Reason:        cause.Error(),
				FailedAt:      now,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("release reservation after failed delivery: %w", multierr.Combine(cause, err))
	}

	d.logg.WarnErr(ctx, "marketplace rejected delivery; reservation released", cause)
	return pkgerrors.Wrap(pkgerrors.CodeDeliveryFailed, cause, "marketplace delivery failed")
}

func (d *Dispatcher) hold(ctx context.Context, orderID, itemID string, codes []models.Code, cause error) error {
	now := d.now()
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventItemDeliveryFailed,
			AggregateType: enums.AggregateMarketplaceOrder,
			AggregateID:   orderID,
			OccurredAt:    now,
			Data: payloads.ItemDeliveryFailedEvent{
				OrderID:   orderID,
				ItemID:    itemID,
				ProductID: codes[0].ProductID,
				HeldCodes: len(codes),
				Recovered: true,
				Reason:    cause.Error(),
				FailedAt:  now,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("record unconfirmed recovery: %w", multierr.Combine(cause, err))
	}

	d.logg.Error(d.logg.WithField(ctx, "held", len(codes)), "marketplace rejected recovered delivery; codes kept reserved for reconciliation", cause)
	return fmt.Errorf("%w: %w", ErrReservationHeld, cause)
}
