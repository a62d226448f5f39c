package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/creatorpay-backend/internal/campaigns"
	"github.com/angelmondragon/creatorpay-backend/internal/cron"
	"github.com/angelmondragon/creatorpay-backend/internal/notifications"
	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/db"
	"github.com/angelmondragon/creatorpay-backend/pkg/instance"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/metrics"
	"github.com/angelmondragon/creatorpay-backend/pkg/migrate"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpay-backend/pkg/redis"
)

const lockKeyFormat = "cp:cron-worker:lock:%s"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	requireResource(ctx, logg, "cron lock", err)

	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Cron.OutboxRetentionDays,
	})
	requireResource(ctx, logg, "outbox retention job", err)

	notificationJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:        logg,
		Repository:    notifications.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Cron.NotificationRetentionDays,
	})
	requireResource(ctx, logg, "notification cleanup job", err)

	stalledJob, err := cron.NewStalledReleaseJob(cron.StalledReleaseJobParams{
		Logger:     logg,
		Repository: campaigns.NewRepository(dbClient.DB()),
		After:      cfg.Cron.StalledReleaseAfter,
	})
	requireResource(ctx, logg, "stalled release job", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(outboxJob, notificationJob, stalledJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
		"instance": instance.ID(),
	})
	logg.Info(runCtx, "starting cron worker")

	runErr := service.Run(runCtx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if err := multierr.Combine(runErr, redisClient.Close(), dbClient.Close()); err != nil {
		logg.Error(ctx, "cron worker stopped with errors", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker stopped")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
