package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// FulfillmentEventRow mirrors the fulfillment_events BigQuery schema.
// Quantity is codes sent, codes released or held, or codes requested
// depending on the event type.
type FulfillmentEventRow struct {
	EventID       string               `bigquery:"event_id"`
	EventType     string               `bigquery:"event_type"`
	AggregateType string               `bigquery:"aggregate_type"`
	AggregateID   string               `bigquery:"aggregate_id"`
	OccurredAt    time.Time            `bigquery:"occurred_at"`
	OrderID       string               `bigquery:"order_id"`
	ItemID        string               `bigquery:"item_id"`
	ProductID     cbigquery.NullString `bigquery:"product_id"`
	Quantity      int64                `bigquery:"quantity"`
	Available     cbigquery.NullInt64  `bigquery:"available"`
	Degraded      bool                 `bigquery:"degraded"`
	Recovered     bool                 `bigquery:"recovered"`
	Reason        cbigquery.NullString `bigquery:"reason"`
	Payload       cbigquery.NullJSON   `bigquery:"payload"`
}

// FulfillmentEventSchema is the table layout created for FulfillmentEventRow
// when the table is missing.
func FulfillmentEventSchema() cbigquery.Schema {
	required := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t, Required: true}
	}
	nullable := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("aggregate_type", cbigquery.StringFieldType),
		required("aggregate_id", cbigquery.StringFieldType),
		required("occurred_at", cbigquery.TimestampFieldType),
		required("order_id", cbigquery.StringFieldType),
		required("item_id", cbigquery.StringFieldType),
		nullable("product_id", cbigquery.StringFieldType),
		required("quantity", cbigquery.IntegerFieldType),
		nullable("available", cbigquery.IntegerFieldType),
		required("degraded", cbigquery.BooleanFieldType),
		required("recovered", cbigquery.BooleanFieldType),
		nullable("reason", cbigquery.StringFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}
