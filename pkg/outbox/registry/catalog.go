package registry

import (
	"encoding/json"

	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/payloads"
)

// kind is one fulfillment event: the aggregate it belongs to and a decoder
// per payload version.
type kind struct {
	eventType enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	versions  map[int]decoderFunc
}

// catalog is shared by the publisher, which validates rows before shipping
// them, and the analytics consumer, which decodes what arrives.
var catalog = []kind{
	{
		eventType: enums.EventItemDelivered,
		aggregate: enums.AggregateMarketplaceOrder,
		versions:  map[int]decoderFunc{1: decodeInto[payloads.ItemDeliveredEvent]},
	},
	{
		eventType: enums.EventItemDeliveryFailed,
		aggregate: enums.AggregateMarketplaceOrder,
		versions:  map[int]decoderFunc{1: decodeInto[payloads.ItemDeliveryFailedEvent]},
	},
	{
		eventType: enums.EventStockShortage,
		aggregate: enums.AggregateProduct,
		versions:  map[int]decoderFunc{1: decodeInto[payloads.StockShortageEvent]},
	},
}

func decodeInto[T any](payload json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, err
	}
	return out, nil
}
