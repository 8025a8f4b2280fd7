package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digital-fulfillment/pkg/redis"
)

// Manager claims event IDs per consumer so a redelivered Pub/Sub message is
// handled once. A claim is a SETNX key
// `df:idempotency:evt:<consumer>:<event_id>` whose value is the claiming
// instance, kept for the configured TTL.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	owner string
}

// NewManager builds a claim manager. owner identifies this process in claim
// values; an empty owner falls back to a random one.
func NewManager(store redis.IdempotencyStore, ttl time.Duration, owner string) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if owner == "" {
		owner = uuid.NewString()
	}
	return &Manager{store: store, ttl: ttl, owner: owner}, nil
}

// Claim reports whether this caller won the event. false means another
// delivery already claimed it.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.owner, m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return claimed, nil
}

// Release gives up a claim held by this manager so a retry can take it.
// Claims owned by other instances are left alone.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if _, err := m.store.DelIfValue(ctx, key, m.owner); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
