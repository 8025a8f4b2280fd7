package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveRun("outbox-retention", 250*time.Millisecond, nil)
	m.ObserveRun("outbox-retention", time.Second, errors.New("db down"))
	m.ObserveRun("", time.Millisecond, nil)
	m.IncLockContended()

	if got := testutil.ToFloat64(m.runs.WithLabelValues("outbox-retention", cronResultSuccess)); got != 1 {
		t.Fatalf("expected 1 success, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("outbox-retention", cronResultFailure)); got != 1 {
		t.Fatalf("expected 1 failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("unknown", cronResultSuccess)); got != 1 {
		t.Fatalf("empty job name should map to unknown, got %f", got)
	}
	if got := testutil.ToFloat64(m.lockContended); got != 1 {
		t.Fatalf("expected 1 contended cycle, got %f", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("outbox-retention")); got <= 0 {
		t.Fatalf("last success timestamp not set: %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if sum := histogramSum(mfs, "fulfillment_cron_job_duration_seconds", "outbox-retention"); sum < 1.25 {
		t.Fatalf("expected duration sum >= 1.25s, got %f", sum)
	}
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	m.IncLockContended()
	if NewCronJobMetrics(nil) != nil {
		t.Fatal("nil registerer should give a nil recorder")
	}
}

func histogramSum(mfs []*dto.MetricFamily, name, job string) float64 {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "job" && l.GetValue() == job {
					return metric.GetHistogram().GetSampleSum()
				}
			}
		}
	}
	return 0
}
