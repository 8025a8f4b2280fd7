package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/payloads"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventStockShortage, 2, func(payload json.RawMessage) (any, error) {
		var decoded map[string]string
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	output, err := reg.Decode(enums.EventStockShortage, 2, json.RawMessage(`{"orderId":"o-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outMap, ok := output.(map[string]string); !ok || outMap["orderId"] != "o-1" {
		t.Fatalf("unexpected output %+v", output)
	}

	_, err = reg.Decode(enums.EventStockShortage, 1, json.RawMessage(`{}`))
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error for unknown version, got %v", err)
	}
}

func TestFulfillmentDecoders(t *testing.T) {
	reg := NewFulfillmentDecoders()

	out, err := reg.Decode(enums.EventStockShortage, 1, json.RawMessage(`{"orderId":"o-1","itemId":"7","requested":2,"available":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	shortage, ok := out.(*payloads.StockShortageEvent)
	if !ok {
		t.Fatalf("unexpected type %T", out)
	}
	if shortage.Requested != 2 || shortage.Available != 1 || shortage.ItemID != "7" {
		t.Fatalf("unexpected payload %+v", shortage)
	}
}
