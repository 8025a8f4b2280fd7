package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/digital-fulfillment/internal/delivery"
	"github.com/angelmondragon/digital-fulfillment/internal/events"
	"github.com/angelmondragon/digital-fulfillment/internal/fulfillment"
	"github.com/angelmondragon/digital-fulfillment/internal/inventory"
	"github.com/angelmondragon/digital-fulfillment/internal/marketplace"
	"github.com/angelmondragon/digital-fulfillment/internal/reservation"
	"github.com/angelmondragon/digital-fulfillment/internal/resolver"
	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/db"
	"github.com/angelmondragon/digital-fulfillment/pkg/instance"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/metrics"
	"github.com/angelmondragon/digital-fulfillment/pkg/migrate"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox"
)

const serviceKind = "fulfillment-worker"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.FromConfig(serviceKind, cfg.App))

	requireResource(ctx, logg, "marketplace config", cfg.Marketplace.Validate())

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	marketClient, err := marketplace.NewClient(cfg.Marketplace)
	requireResource(ctx, logg, "marketplace client", err)

	orderResolver, err := resolver.New(marketClient)
	requireResource(ctx, logg, "order resolver", err)

	fulfillmentMetrics := metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer)
	poolStats, err := dbClient.StatsCollector("fulfillment")
	requireResource(ctx, logg, "database stats", err)
	prometheus.MustRegister(poolStats)
	inventoryRepo := inventory.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg, serviceKind)

	engine, err := reservation.NewEngine(dbClient, inventoryRepo, outboxService, logg)
	requireResource(ctx, logg, "reservation engine", err)

	dispatcher, err := delivery.NewDispatcher(dbClient, inventoryRepo, marketClient, outboxService, fulfillmentMetrics, logg)
	requireResource(ctx, logg, "delivery dispatcher", err)

	schedule := fulfillment.ScheduleFromConfig(cfg.Worker)
	processor, err := fulfillment.NewProcessor(fulfillment.ProcessorParams{
		Resolver:   orderResolver,
		Inventory:  inventoryRepo,
		Reserver:   engine,
		Dispatcher: dispatcher,
		Events:     events.NewRepository(dbClient.DB()),
		Metrics:    fulfillmentMetrics,
		Logger:     logg,
		BatchSize:  schedule.BatchSize,
	})
	requireResource(ctx, logg, "fulfillment processor", err)

	service, err := fulfillment.NewService(fulfillment.ServiceParams{
		Processor: processor,
		DB:        dbClient,
		Schedule:  schedule,
		Logger:    logg,
	})
	requireResource(ctx, logg, "fulfillment service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(cfg.Service.Kind),
	})

	if addr := cfg.Worker.MetricsAddr; addr != "" {
		server := &http.Server{
			Addr:              addr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(runCtx, "metrics server stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	logg.Info(runCtx, "starting fulfillment worker")
	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "fulfillment worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "fulfillment worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
