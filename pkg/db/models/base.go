package models

import (
	"github.com/google/uuid"
)

// ensureID assigns a random UUID when the caller did not set one. Postgres
// also defaults ids server-side, but sqlite has no gen_random_uuid().
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Product{},
		&OfferMapping{},
		&Code{},
		&DeliveryLog{},
		&MarketplaceEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
