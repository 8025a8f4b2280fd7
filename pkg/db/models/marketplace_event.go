package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MarketplaceEvent is an ingested order notification. Rows are never deleted;
// ProcessedAt stays nil until the fulfillment loop disposes of the event.
type MarketplaceEvent struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     string          `gorm:"column:order_id;not null;uniqueIndex:ux_marketplace_events_order_type_time,priority:1"`
	Type        string          `gorm:"column:type;not null;uniqueIndex:ux_marketplace_events_order_type_time,priority:2"`
	EventTime   time.Time       `gorm:"column:event_time;not null;uniqueIndex:ux_marketplace_events_order_type_time,priority:3"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ProcessedAt *time.Time      `gorm:"column:processed_at;index"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (e *MarketplaceEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
