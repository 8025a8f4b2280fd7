package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncBatch()
	m.IncEvent("item_delivered", OutboxPublished)
	m.IncEvent("item_delivered", OutboxPublished)
	m.IncEvent("", OutboxDeadLettered)
	m.ObservePublished(time.Now().Add(-time.Second))
	m.ObservePublished(time.Time{})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("item_delivered", OutboxPublished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("unknown", OutboxDeadLettered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))

	var nilMetrics *OutboxMetrics
	nilMetrics.IncBatch()
	nilMetrics.IncEvent("x", OutboxRetry)
	nilMetrics.ObservePublished(time.Now())
	assert.Nil(t, NewOutboxMetrics(nil))
}
