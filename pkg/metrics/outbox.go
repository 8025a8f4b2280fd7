package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox row dispositions after one publish attempt.
const (
	OutboxPublished    = "published"
	OutboxRetry        = "retry"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the outbox publisher. A nil value records nothing.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency prometheus.Histogram
	batches prometheus.Counter
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled by the publisher, by disposition.",
		}, []string{"event_type", "result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_latency_seconds",
			Help:      "Time from outbox insert to a confirmed Pub/Sub publish.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batches_total",
			Help:      "Non-empty batches claimed by the publisher.",
		}),
	}
	reg.MustRegister(m.events, m.latency, m.batches)
	return m
}

func (m *OutboxMetrics) IncEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), result).Inc()
}

// ObservePublished records the insert-to-publish lag of one row.
func (m *OutboxMetrics) ObservePublished(createdAt time.Time) {
	if m == nil || createdAt.IsZero() {
		return
	}
	m.latency.Observe(time.Since(createdAt).Seconds())
}

func (m *OutboxMetrics) IncBatch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}
