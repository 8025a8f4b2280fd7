package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
)

func event(orderID string) *models.MarketplaceEvent {
	return &models.MarketplaceEvent{
		OrderID:   orderID,
		Type:      "ORDER_STATUS_UPDATED",
		EventTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Payload:   json.RawMessage(`{}`),
	}
}

func countEvents(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.MarketplaceEvent{}).Count(&n).Error)
	return n
}

func TestWithTx(t *testing.T) {
	conn := dbtest.Open(t)
	client := NewFromConn(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(event("1")).Error
	}))
	assert.EqualValues(t, 1, countEvents(t, conn))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(event("2")).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, countEvents(t, conn), "failed tx must roll back")

	assert.PanicsWithValue(t, "boom", func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(event("3")).Error)
			panic("boom")
		})
	})
	assert.EqualValues(t, 1, countEvents(t, conn), "panicking tx must roll back")
}

func TestWithTxHonorsCanceledContext(t *testing.T) {
	client := NewFromConn(dbtest.Open(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := client.WithTx(ctx, func(*gorm.DB) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestNewOpensSQLiteFromConfig(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{
		Driver:       config.DBDriverSQLite,
		DSN:          "file:client_new?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(context.Background()))
	assert.False(t, IsPostgres(client.DB()))
	assert.Equal(t, "sqlite", client.DB().Dialector.Name())
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := map[string]config.DBConfig{
		"missing dsn":    {Driver: config.DBDriverPostgres},
		"unknown driver": {Driver: "oracle", DSN: "oracle://x"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(context.Background(), cfg, nil)
			require.Error(t, err)
		})
	}
}

func TestDialectorForPostgresDefault(t *testing.T) {
	d, err := dialectorFor(config.DBConfig{DSN: "postgres://localhost/fulfillment"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
	assert.False(t, IsPostgres(nil))
}

func TestStatsCollectorReportsPool(t *testing.T) {
	collector, err := NewFromConn(dbtest.Open(t)).StatsCollector("fulfillment")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(collector))
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_sql_max_open_connections")
}
