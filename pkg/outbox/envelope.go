package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultVersion = 1

// PayloadEnvelope is what outbox_events.payload holds and what the publisher
// ships as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Producer   string          `json:"producer,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var errEmptyData = errors.New("envelope carries no data")

// Seal marshals data into a fresh envelope with a new event id. A zero
// version or time is defaulted.
func Seal(data any, version int, occurredAt time.Time, producer string) (PayloadEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal event data: %w", err)
	}
	if isEmpty(raw) {
		return PayloadEnvelope{}, errEmptyData
	}
	if version <= 0 {
		version = defaultVersion
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Producer:   producer,
		Data:       raw,
	}, nil
}

// Open decodes a stored envelope and rejects one without data.
func Open(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if isEmpty(env.Data) {
		return PayloadEnvelope{}, errEmptyData
	}
	if env.Version <= 0 {
		env.Version = defaultVersion
	}
	return env, nil
}

func isEmpty(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
