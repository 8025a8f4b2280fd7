package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryLog is the durable proof that an order item was fulfilled. The
// unique (order_id, item_id) index is the idempotency gate against re-delivery.
type DeliveryLog struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   string    `gorm:"column:order_id;not null;uniqueIndex:ux_delivery_logs_order_item,priority:1"`
	ItemID    string    `gorm:"column:item_id;not null;uniqueIndex:ux_delivery_logs_order_item,priority:2"`
	CodeID    uuid.UUID `gorm:"column:code_id;type:uuid;not null"`
	Code      *Code     `gorm:"foreignKey:CodeID;references:ID"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (l *DeliveryLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
