package payloads

import (
	"time"

	"github.com/google/uuid"
)

// ItemDeliveredEvent is emitted in the same transaction that logs a delivery.
type ItemDeliveredEvent struct {
	OrderID     string      `json:"orderId"`
	ItemID      string      `json:"itemId"`
	ProductID   uuid.UUID   `json:"productId"`
	CodeIDs     []uuid.UUID `json:"codeIds"`
	CodesSent   int         `json:"codesSent"`
	Degraded    bool        `json:"degraded"`
	Recovered   bool        `json:"recovered"`
	DeliveredAt time.Time   `json:"deliveredAt"`
}

// ItemDeliveryFailedEvent records a rejected delivery. Fresh deliveries send
// their codes back to stock. A rejected recovery keeps them reserved
// (HeldCodes) until an operator reconciles the order.
type ItemDeliveryFailedEvent struct {
	OrderID       string    `json:"orderId"`
	ItemID        string    `json:"itemId"`
	ProductID     uuid.UUID `json:"productId"`
	ReleasedCodes int       `json:"releasedCodes"`
	HeldCodes     int       `json:"heldCodes,omitempty"`
	Recovered     bool      `json:"recovered,omitempty"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failedAt"`
}

// StockShortageEvent reports an item that could not be reserved.
type StockShortageEvent struct {
	OrderID    string    `json:"orderId"`
	ItemID     string    `json:"itemId"`
	ProductID  uuid.UUID `json:"productId"`
	Requested  int       `json:"requested"`
	Available  int       `json:"available"`
	DetectedAt time.Time `json:"detectedAt"`
}
