package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Item outcomes reported by the fulfillment loop.
const (
	OutcomeDelivered         = "delivered"
	OutcomeAlreadyDelivered  = "already_delivered"
	OutcomeRecovered         = "recovered"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeDeliveryFailed    = "delivery_failed"
	OutcomeHeld              = "held_for_reconciliation"
	OutcomeSkipped           = "skipped"
	OutcomeError             = "error"
)

// Event outcomes.
const (
	EventProcessed = "processed"
	EventRetry     = "retry"
)

// FulfillmentMetrics tracks the event loop and per-item dispositions.
type FulfillmentMetrics struct {
	events            *prometheus.CounterVec
	items             *prometheus.CounterVec
	degraded          prometheus.Counter
	batchDuration     prometheus.Histogram
	staleReservations prometheus.Gauge
	backlog           prometheus.Gauge
}

// NewFulfillmentMetrics registers the fulfillment collectors on reg. A nil
// registerer yields a no-op recorder.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	m := &FulfillmentMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_events_total",
			Help: "Marketplace events handled by the fulfillment loop.",
		}, []string{"outcome"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_items_total",
			Help: "Order items handled by the fulfillment loop, by outcome.",
		}, []string{"outcome"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_degraded_deliveries_total",
			Help: "Deliveries where more codes were reserved than the marketplace accepts per item.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fulfillment_batch_duration_seconds",
			Help:    "Time spent processing one batch of events.",
			Buckets: prometheus.DefBuckets,
		}),
		staleReservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fulfillment_stale_reservations",
			Help: "Codes reserved longer than the configured threshold without delivery.",
		}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fulfillment_event_backlog",
			Help: "Marketplace events not yet processed, sampled after each batch.",
		}),
	}
	reg.MustRegister(m.events, m.items, m.degraded, m.batchDuration, m.staleReservations, m.backlog)
	return m
}

func (m *FulfillmentMetrics) IncEvent(outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) IncItem(outcome string) {
	if m == nil || m.items == nil {
		return
	}
	m.items.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) IncDegraded() {
	if m == nil || m.degraded == nil {
		return
	}
	m.degraded.Inc()
}

func (m *FulfillmentMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

// SetStaleReservations records the latest stale reservation count.
func (m *FulfillmentMetrics) SetStaleReservations(n int) {
	if m == nil || m.staleReservations == nil {
		return
	}
	m.staleReservations.Set(float64(n))
}

func (m *FulfillmentMetrics) SetBacklog(n int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
