package enums

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateMarketplaceOrder OutboxAggregateType = "marketplace_order"
	AggregateProduct          OutboxAggregateType = "product"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateMarketplaceOrder, AggregateProduct}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value, "aggregate type")
}

// OutboxEventType identifies a fulfillment fact published downstream.
type OutboxEventType string

const (
	EventItemDelivered      OutboxEventType = "item_delivered"
	EventItemDeliveryFailed OutboxEventType = "item_delivery_failed"
	EventStockShortage      OutboxEventType = "stock_shortage"
)

var eventTypes = set[OutboxEventType]{EventItemDelivered, EventItemDeliveryFailed, EventStockShortage}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value, "outbox event type")
}

// OutboxDLQErrorReason records why a row was dead-lettered instead of retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = set[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
