package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFulfillmentMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFulfillmentMetrics(reg)

	m.IncItem(OutcomeDelivered)
	m.IncItem(OutcomeDelivered)
	m.IncItem(OutcomeInsufficientStock)
	m.IncEvent(EventProcessed)
	m.IncDegraded()
	m.ObserveBatch(150 * time.Millisecond)
	m.SetStaleReservations(3)
	m.SetBacklog(12)

	if got := testutil.ToFloat64(m.items.WithLabelValues(OutcomeDelivered)); got != 2 {
		t.Fatalf("expected delivered=2, got %f", got)
	}
	if got := testutil.ToFloat64(m.items.WithLabelValues(OutcomeInsufficientStock)); got != 1 {
		t.Fatalf("expected insufficient_stock=1, got %f", got)
	}
	if n := testutil.CollectAndCount(reg, "fulfillment_batch_duration_seconds"); n != 1 {
		t.Fatalf("expected batch histogram to be registered, got %d", n)
	}
	if got := testutil.ToFloat64(m.degraded); got != 1 {
		t.Fatalf("expected degraded=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.staleReservations); got != 3 {
		t.Fatalf("expected stale gauge=3, got %f", got)
	}
	if got := testutil.ToFloat64(m.backlog); got != 12 {
		t.Fatalf("expected backlog=12, got %f", got)
	}
}

func TestFulfillmentMetricsNilSafe(t *testing.T) {
	var m *FulfillmentMetrics
	m.IncItem(OutcomeDelivered)
	m.IncEvent(EventRetry)
	m.IncDegraded()
	m.ObserveBatch(time.Second)
	m.SetStaleReservations(1)
	m.SetBacklog(1)

	noop := NewFulfillmentMetrics(nil)
	noop.IncItem(OutcomeSkipped)
}
