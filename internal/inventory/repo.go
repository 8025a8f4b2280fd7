package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/digital-fulfillment/pkg/db"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
)

const deliveryLogConstraint = "ux_delivery_logs_order_item"

// ErrDeliveryLogExists is returned when another worker already logged the item.
var ErrDeliveryLogExists = errors.New("delivery log already exists")

// Repository owns every mutation of codes and delivery logs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindOfferMapping resolves a marketplace offer to a product.
func (r *Repository) FindOfferMapping(ctx context.Context, offerID string) (*models.OfferMapping, error) {
	var mapping models.OfferMapping
	err := r.db.WithContext(ctx).First(&mapping, "offer_id = ?", strings.TrimSpace(offerID)).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no offer mapping for %q", offerID)
		}
		return nil, err
	}
	return &mapping, nil
}

// HasDeliveryLog is the idempotency gate checked before any reservation.
func (r *Repository) HasDeliveryLog(ctx context.Context, orderID, itemID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DeliveryLog{}).
		Where("order_id = ? AND item_id = ?", orderID, itemID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindReservedCodes returns codes currently reserved for the item, in reservation order.
func (r *Repository) FindReservedCodes(ctx context.Context, orderID, itemID string) ([]models.Code, error) {
	var codes []models.Code
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND item_id = ? AND status = ?", orderID, itemID, enums.CodeStatusReserved).
		Order("created_at ASC, id ASC").
		Find(&codes).Error
	return codes, err
}

// ListAvailableCodes selects claim candidates. On Postgres the rows are locked
// FOR UPDATE SKIP LOCKED so concurrent reservers pick disjoint candidates.
func (r *Repository) ListAvailableCodes(ctx context.Context, productID uuid.UUID, limit int) ([]models.Code, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ?", productID, enums.CodeStatusAvailable).
		Order("created_at ASC, id ASC").
		Limit(limit)
	if db.IsPostgres(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var codes []models.Code
	if err := query.Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// move runs one conditional status transition over the codes selected by
// scope and reports how many rows changed. Only rows still in from are
// touched, so a lost race shows up as zero rows rather than an overwrite.
func (r *Repository) move(ctx context.Context, from, to enums.CodeStatus, scope func(*gorm.DB) *gorm.DB, fields map[string]any) (int64, error) {
	if !from.CanBecome(to) {
		return 0, fmt.Errorf("illegal code transition %s -> %s", from, to)
	}
	fields["status"] = to
	result := scope(r.db.WithContext(ctx).Model(&models.Code{}).Where("status = ?", from)).Updates(fields)
	return result.RowsAffected, result.Error
}

// ClaimCode moves one code from available to reserved. It reports false when
// the code was no longer available.
func (r *Repository) ClaimCode(ctx context.Context, codeID uuid.UUID, orderID, itemID string, now time.Time) (bool, error) {
	n, err := r.move(ctx, enums.CodeStatusAvailable, enums.CodeStatusReserved,
		func(q *gorm.DB) *gorm.DB { return q.Where("id = ?", codeID) },
		map[string]any{"order_id": orderID, "item_id": itemID, "reserved_at": now, "updated_at": now})
	return n == 1, err
}

// MarkDelivered flips the item's reserved codes to delivered. The update is
// conditional on the reservation still belonging to the same order item.
func (r *Repository) MarkDelivered(ctx context.Context, codeIDs []uuid.UUID, orderID, itemID string, now time.Time) (int64, error) {
	if len(codeIDs) == 0 {
		return 0, nil
	}
	return r.move(ctx, enums.CodeStatusReserved, enums.CodeStatusDelivered,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("id IN ? AND order_id = ? AND item_id = ?", codeIDs, orderID, itemID)
		},
		map[string]any{"delivered_at": now, "updated_at": now})
}

// InsertDeliveryLog writes the proof of delivery. A duplicate (order, item)
// yields ErrDeliveryLogExists.
func (r *Repository) InsertDeliveryLog(ctx context.Context, entry *models.DeliveryLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if db.IsUniqueViolation(err, deliveryLogConstraint) {
			return ErrDeliveryLogExists
		}
		return err
	}
	return nil
}

// ReleaseCodes returns the item's still-reserved codes to the available pool.
func (r *Repository) ReleaseCodes(ctx context.Context, orderID, itemID string, now time.Time) (int64, error) {
	return r.move(ctx, enums.CodeStatusReserved, enums.CodeStatusAvailable,
		func(q *gorm.DB) *gorm.DB { return q.Where("order_id = ? AND item_id = ?", orderID, itemID) },
		map[string]any{"order_id": nil, "item_id": nil, "reserved_at": nil, "updated_at": now})
}

// ListStaleReservations returns codes reserved before cutoff that were never delivered.
func (r *Repository) ListStaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]models.Code, error) {
	var codes []models.Code
	query := r.db.WithContext(ctx).
		Where("status = ? AND reserved_at < ?", enums.CodeStatusReserved, cutoff).
		Order("reserved_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&codes).Error
	return codes, err
}

// CountStaleReservations counts codes reserved before cutoff.
func (r *Repository) CountStaleReservations(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Code{}).
		Where("status = ? AND reserved_at < ?", enums.CodeStatusReserved, cutoff).
		Count(&count).Error
	return count, err
}
