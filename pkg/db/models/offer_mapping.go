package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OfferMapping translates a marketplace offer (SKU) into an internal product.
type OfferMapping struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OfferID   string    `gorm:"column:offer_id;not null;uniqueIndex:ux_offer_mappings_offer_id"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Product   *Product  `gorm:"foreignKey:ProductID;references:ID"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (m *OfferMapping) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
