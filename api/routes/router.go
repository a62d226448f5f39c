package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/creatorpay-backend/api/controllers"
	"github.com/angelmondragon/creatorpay-backend/api/middleware"
	"github.com/angelmondragon/creatorpay-backend/internal/deposits"
	"github.com/angelmondragon/creatorpay-backend/internal/ledger"
	"github.com/angelmondragon/creatorpay-backend/internal/notifications"
	"github.com/angelmondragon/creatorpay-backend/internal/payouts"
	"github.com/angelmondragon/creatorpay-backend/internal/withdrawals"
	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/creatorpay-backend/pkg/redis"
)

// RedisStore backs idempotent replay and rate limiting.
type RedisStore interface {
	pkgredis.IdempotencyStore
	Ping(context.Context) error
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Params carries everything the router mounts. Redis and Metrics are
// optional; without Redis, replay and rate limiting are disabled.
type Params struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         RedisStore
	Metrics       prometheus.Gatherer
	Payouts       payouts.Service
	Deposits      deposits.Service
	Withdrawals   withdrawals.Service
	Ledger        ledger.Service
	Notifications notifications.Service
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	moneyPolicy := middleware.NewRateLimitPolicy(
		"money",
		cfg.RateLimit.Window,
		cfg.RateLimit.AddressLimit,
		cfg.RateLimit.ActorLimit,
	)

	gatherer := p.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"database": p.DB,
			"redis":    p.Redis,
		}, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(moneyPolicy, p.Redis, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireFundsRole(logg))
			r.Post("/release-campaign-payments", controllers.ReleaseCampaignPayments(p.Payouts, logg))
			r.Post("/record-deposit", controllers.RecordDeposit(p.Deposits, logg))

			r.Route("/campaigns/{campaignId}", func(r chi.Router) {
				r.Get("/release-status", controllers.CampaignReleaseStatus(p.Payouts, logg))
				r.Get("/funds", controllers.CampaignFunds(p.Deposits, logg))
				r.Get("/transactions", controllers.ListCampaignTransactions(p.Ledger, logg))
			})
		})

		r.Post("/withdrawals", controllers.RequestWithdrawal(p.Withdrawals, logg))
		r.Get("/users/{userId}/transactions", controllers.ListUserTransactions(p.Ledger, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
		})
	})

	return r
}
