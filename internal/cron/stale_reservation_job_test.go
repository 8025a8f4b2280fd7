package cron

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/digital-fulfillment/internal/inventory"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/metrics"
)

func TestStaleReservationJobReportsWithoutReleasing(t *testing.T) {
	conn := dbtest.Open(t)
	product, codes := dbtest.SeedProduct(t, conn, "SKU-STALE", 3)
	repo := inventory.NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.ClaimCode(ctx, codes[0].ID, "100", "1", now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = repo.ClaimCode(ctx, codes[1].ID, "101", "1", now.Add(-5*time.Minute))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	fm := metrics.NewFulfillmentMetrics(reg)
	jobIface, err := NewStaleReservationJob(StaleReservationJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Metrics:    fm,
		StaleAfter: time.Hour,
	})
	require.NoError(t, err)
	job := jobIface.(*staleReservationJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(ctx))

	assert.Equal(t, 1.0, gaugeValue(t, reg, "fulfillment_stale_reservations"))
	assert.EqualValues(t, 2, dbtest.CountCodes(t, conn, product.ID, string(enums.CodeStatusReserved)))
}

func TestStaleReservationJobZeroesGaugeWhenClean(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedProduct(t, conn, "SKU-CLEAN", 2)

	reg := prometheus.NewRegistry()
	fm := metrics.NewFulfillmentMetrics(reg)
	fm.SetStaleReservations(4)
	job, err := NewStaleReservationJob(StaleReservationJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: inventory.NewRepository(conn),
		Metrics:    fm,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0.0, gaugeValue(t, reg, "fulfillment_stale_reservations"))
}

func TestNewStaleReservationJobRequiresRepository(t *testing.T) {
	_, err := NewStaleReservationJob(StaleReservationJobParams{Logger: logger.New(logger.Options{})})
	require.Error(t, err)
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
