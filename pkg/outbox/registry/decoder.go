package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, payload version) to a decoder.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	decoders map[decoderKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]decoderFunc)}
}

// NewFulfillmentDecoders registers every version of every catalog event.
func NewFulfillmentDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	for _, k := range catalog {
		for version, decode := range k.versions {
			reg.Register(k.eventType, version, decode)
		}
	}
	return reg
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.decoders[decoderKey{eventType, version}] = decoder
}

// Decode fails non-retryably for an unknown pair or a payload that does not
// fit its schema.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decode, ok := r.decoders[decoderKey{eventType, version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("decoder not registered for %s@v%d", eventType, version))
	}
	out, err := decode(payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s@v%d: %w", eventType, version, err))
	}
	return out, nil
}
