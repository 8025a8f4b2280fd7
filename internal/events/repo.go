package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
)

// Repository is the append-only marketplace event log.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Append stores the event unless (order_id, type, event_time) already exists.
// It reports whether a new row was written.
func (r *Repository) Append(ctx context.Context, event *models.MarketplaceEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "type"}, {Name: "event_time"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FetchUnprocessed returns the oldest events still awaiting fulfillment.
func (r *Repository) FetchUnprocessed(ctx context.Context, limit int) ([]models.MarketplaceEvent, error) {
	var rows []models.MarketplaceEvent
	query := r.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("event_time ASC, created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkProcessed stamps processed_at once; a second call is a no-op.
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.MarketplaceEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("processed_at", now).Error
}

// CountUnprocessed reports the backlog size.
func (r *Repository) CountUnprocessed(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.MarketplaceEvent{}).
		Where("processed_at IS NULL").
		Count(&n).Error
	return n, err
}
