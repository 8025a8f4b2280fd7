package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
)

// Code is one redeemable inventory unit. OrderID/ItemID/ReservedAt are set
// while reserved and kept once delivered.
type Code struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index:idx_codes_product_status,priority:1;uniqueIndex:ux_codes_product_code_text,priority:1"`
	CodeText    string           `gorm:"column:code_text;not null;uniqueIndex:ux_codes_product_code_text,priority:2"`
	Status      enums.CodeStatus `gorm:"column:status;type:varchar(16);not null;default:available;index:idx_codes_product_status,priority:2"`
	OrderID     *string          `gorm:"column:order_id;index:idx_codes_order_item,priority:1"`
	ItemID      *string          `gorm:"column:item_id;index:idx_codes_order_item,priority:2"`
	ReservedAt  *time.Time       `gorm:"column:reserved_at"`
	DeliveredAt *time.Time       `gorm:"column:delivered_at"`
	Product     *Product         `gorm:"foreignKey:ProductID;references:ID"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Code) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	if c.Status == "" {
		c.Status = enums.CodeStatusAvailable
	}
	return nil
}
