package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/digital-fulfillment/internal/analytics/router"
	"github.com/angelmondragon/digital-fulfillment/internal/analytics/types"
	"github.com/angelmondragon/digital-fulfillment/internal/analytics/worker"
	"github.com/angelmondragon/digital-fulfillment/internal/analytics/writer"
	"github.com/angelmondragon/digital-fulfillment/pkg/bigquery"
	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/instance"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/idempotency"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/registry"
	"github.com/angelmondragon/digital-fulfillment/pkg/pubsub"
	"github.com/angelmondragon/digital-fulfillment/pkg/redis"
)

const flushTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.FromConfig("analytics-worker", cfg.App))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, true, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.FulfillmentSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "fulfillment subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Outbox.IdempotencyTTL, instance.ID("analytics-worker"))
	requireResource(ctx, logg, "idempotency manager", err)

	err = bqClient.EnsureTable(ctx, bigquery.TableSpec{
		Name:           bqClient.EventsTable(),
		Schema:         types.FulfillmentEventSchema(),
		PartitionField: "occurred_at",
		Clustering:     []string{"event_type", "order_id"},
	}, cfg.BigQuery.CreateTables)
	requireResource(ctx, logg, "bigquery events table", err)

	eventsWriter, err := writer.New(bqClient, writer.Config{EventsTable: bqClient.EventsTable()})
	requireResource(ctx, logg, "analytics bigquery writer", err)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := eventsWriter.Flush(flushCtx); err != nil {
			logg.Error(ctx, "failed to flush buffered rows", err)
		}
	}()

	eventRouter, err := router.NewRouter(eventsWriter, registry.NewFulfillmentDecoders(), logg)
	requireResource(ctx, logg, "analytics router", err)

	service, err := worker.NewService(subscription, eventRouter, manager, logg)
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
