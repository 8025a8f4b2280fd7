package enums

// MarketplaceOrderStatus is the top-level order status reported by the marketplace.
type MarketplaceOrderStatus string

const (
	OrderStatusPlacing    MarketplaceOrderStatus = "PLACING"
	OrderStatusReserved   MarketplaceOrderStatus = "RESERVED"
	OrderStatusUnpaid     MarketplaceOrderStatus = "UNPAID"
	OrderStatusProcessing MarketplaceOrderStatus = "PROCESSING"
	OrderStatusDelivery   MarketplaceOrderStatus = "DELIVERY"
	OrderStatusPickup     MarketplaceOrderStatus = "PICKUP"
	OrderStatusDelivered  MarketplaceOrderStatus = "DELIVERED"
	OrderStatusCancelled  MarketplaceOrderStatus = "CANCELLED"
)

// fulfillable lists the in-flight states in which codes may be sent.
var fulfillable = set[MarketplaceOrderStatus]{OrderStatusProcessing, OrderStatusDelivery, OrderStatusPickup}

// IsFulfillable reports whether codes may be delivered for an order in this status.
func (s MarketplaceOrderStatus) IsFulfillable() bool { return fulfillable.has(s) }

// MarketplaceItemType tags an order line as physical or digital.
type MarketplaceItemType string

const (
	ItemTypeDigital MarketplaceItemType = "DIGITAL"
)

// IsDigital reports whether the line carries a digital good.
func (t MarketplaceItemType) IsDigital() bool {
	return t == ItemTypeDigital
}
