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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/creatorpay-backend/api/routes"
	"github.com/angelmondragon/creatorpay-backend/internal/campaigns"
	"github.com/angelmondragon/creatorpay-backend/internal/deposits"
	"github.com/angelmondragon/creatorpay-backend/internal/ledger"
	"github.com/angelmondragon/creatorpay-backend/internal/notifications"
	"github.com/angelmondragon/creatorpay-backend/internal/payouts"
	"github.com/angelmondragon/creatorpay-backend/internal/wallets"
	"github.com/angelmondragon/creatorpay-backend/internal/withdrawals"
	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/db"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/metrics"
	"github.com/angelmondragon/creatorpay-backend/pkg/migrate"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpay-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	var redisStore routes.RedisStore
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		redisStore = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, idempotent replay and rate limiting disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	payoutMetrics := metrics.NewPayoutMetrics(registry)

	var emitter outbox.Emitter = outbox.NoopEmitter{}
	if cfg.FeatureFlags.EmitEvents {
		emitter = outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	}

	campaignRepo := campaigns.NewRepository(dbClient.DB())
	walletRepo := wallets.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "ledger service", err)

	payoutService, err := payouts.NewService(dbClient, campaignRepo, walletRepo, ledgerService, emitter, cfg.Payouts, payoutMetrics, logg)
	requireResource(ctx, logg, "payouts service", err)

	depositService, err := deposits.NewService(dbClient, campaignRepo, ledgerService, emitter, payoutMetrics, logg)
	requireResource(ctx, logg, "deposits service", err)

	withdrawalService, err := withdrawals.NewService(dbClient, walletRepo, ledgerService, emitter, payoutMetrics, logg)
	requireResource(ctx, logg, "withdrawals service", err)

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "notifications service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisStore,
			Metrics:       registry,
			Payouts:       payoutService,
			Deposits:      depositService,
			Withdrawals:   withdrawalService,
			Ledger:        ledgerService,
			Notifications: notificationService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(serverCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-runCtx.Done():
		logg.Info(serverCtx, "api server shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		runErr,
		server.Shutdown(shutdownCtx),
		closeRedis(redisClient),
		dbClient.Close(),
	)
	if err != nil {
		logg.Error(serverCtx, "api server stopped with errors", err)
		os.Exit(1)
	}
	logg.Info(serverCtx, "api server stopped")
}

func closeRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
