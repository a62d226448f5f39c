package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/creatorpay-backend/internal/analytics"
	"github.com/angelmondragon/creatorpay-backend/internal/notifications"
	"github.com/angelmondragon/creatorpay-backend/pkg/bigquery"
	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/db"
	"github.com/angelmondragon/creatorpay-backend/pkg/instance"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/migrate"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/registry"
	"github.com/angelmondragon/creatorpay-backend/pkg/pubsub"
	"github.com/angelmondragon/creatorpay-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.PayoutsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "payouts subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Idempotency.TTL)
	requireResource(ctx, logg, "idempotency manager", err)

	notificationConsumer, err := notifications.NewConsumer(
		notifications.NewRepository(dbClient.DB()),
		subscription,
		registry.NewPayoutDecoders(),
		manager,
		logg,
	)
	requireResource(ctx, logg, "notification consumer", err)

	params := ServiceParams{
		Config:               cfg,
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		NotificationConsumer: notificationConsumer,
	}

	if cfg.BigQuery.Enabled() {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(ctx, "failed to close bigquery client", err)
			}
		}()

		analyticsSub := pubsubClient.AnalyticsSubscription()
		if analyticsSub == nil {
			requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
		}
		writer, err := analytics.NewWriter(bqClient, analytics.WriterConfig{
			Table:     bqClient.LedgerEventsTable(),
			BatchSize: cfg.BigQuery.InsertBatchSize,
		})
		requireResource(ctx, logg, "analytics writer", err)

		params.BigQuery = bqClient
		params.AnalyticsConsumer, err = analytics.NewConsumer(analyticsSub, writer, registry.NewPayoutDecoders(), manager, logg)
		requireResource(ctx, logg, "analytics consumer", err)
	} else {
		logg.Info(ctx, "bigquery dataset not configured, ledger analytics disabled")
	}

	service, err := NewService(params)
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
		"instance":    instance.ID(),
	})
	logg.Info(runCtx, "starting worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
