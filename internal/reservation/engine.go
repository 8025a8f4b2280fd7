package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digital-fulfillment/internal/inventory"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/payloads"
)

// maxClaimRounds bounds how often a reservation refetches after losing rows to
// a concurrent reserver.
const maxClaimRounds = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// codeClaimer is the part of the inventory repository a reservation runs on.
type codeClaimer interface {
	ListAvailableCodes(ctx context.Context, productID uuid.UUID, limit int) ([]models.Code, error)
	ClaimCode(ctx context.Context, codeID uuid.UUID, orderID, itemID string, now time.Time) (bool, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Engine reserves codes all-or-nothing for one order item.
type Engine struct {
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
	within func(tx *gorm.DB) codeClaimer
}

func NewEngine(tx txRunner, repo *inventory.Repository, publisher outboxPublisher, logg *logger.Logger) (*Engine, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Engine{
		tx:     tx,
		outbox: publisher,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
		within: func(tx *gorm.DB) codeClaimer { return repo.WithTx(tx) },
	}, nil
}

type shortage struct {
	available int
}

func (s shortage) Error() string {
	return fmt.Sprintf("only %d codes available", s.available)
}

// Reserve claims quantity available codes of the product for (orderID, itemID).
// Either every code is reserved or none is; a short pool yields an
// INSUFFICIENT_STOCK error.
func (e *Engine) Reserve(ctx context.Context, productID uuid.UUID, orderID, itemID string, quantity int) ([]models.Code, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if orderID == "" || itemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and item id required")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var claimed []models.Code
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		claimed, err = e.claim(ctx, e.within(tx), productID, orderID, itemID, quantity)
		return err
	})

	var short shortage
	if errors.As(err, &short) {
		e.reportShortage(ctx, productID, orderID, itemID, quantity, short.available)
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "requested %d codes, %d available", quantity, short.available).
			WithDetails(map[string]any{
				"product_id": productID,
				"requested":  quantity,
				"available":  short.available,
			})
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (e *Engine) claim(ctx context.Context, repo codeClaimer, productID uuid.UUID, orderID, itemID string, quantity int) ([]models.Code, error) {
	now := e.now()
	claimed := make([]models.Code, 0, quantity)

	for round := 0; round < maxClaimRounds && len(claimed) < quantity; round++ {
		candidates, err := repo.ListAvailableCodes(ctx, productID, quantity-len(claimed))
		if err != nil {
			return nil, fmt.Errorf("list available codes: %w", err)
		}
		if len(candidates) == 0 {
			return nil, shortage{available: len(claimed)}
		}
		for _, code := range candidates {
			ok, err := repo.ClaimCode(ctx, code.ID, orderID, itemID, now)
			if err != nil {
				return nil, fmt.Errorf("claim code %s: %w", code.ID, err)
			}
			if !ok {
				continue
			}
			code.Status = enums.CodeStatusReserved
			code.OrderID = &orderID
			code.ItemID = &itemID
			code.ReservedAt = &now
			claimed = append(claimed, code)
		}
	}

	if len(claimed) < quantity {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "reservation lost too many rows to concurrent workers")
	}
	return claimed, nil
}

// reportShortage records the shortage in its own transaction. Failure is logged
// and does not change the reservation outcome.
func (e *Engine) reportShortage(ctx context.Context, productID uuid.UUID, orderID, itemID string, requested, available int) {
	logCtx := e.logg.WithOrderItem(ctx, orderID, itemID)
	logCtx = e.logg.WithFields(logCtx, map[string]any{
		"product_id": productID.String(),
		"requested":  requested,
		"available":  available,
	})
	e.logg.Warn(logCtx, "insufficient stock for order item")

	now := e.now()
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockShortage,
			AggregateType: enums.AggregateProduct,
			AggregateID:   productID.String(),
			OccurredAt:    now,
			Data: payloads.StockShortageEvent{
				OrderID:    orderID,
				ItemID:     itemID,
				ProductID:  productID,
				Requested:  requested,
				Available:  available,
				DetectedAt: now,
			},
		})
	})
	if err != nil {
		e.logg.WarnErr(logCtx, "failed to queue stock shortage event", err)
	}
}
