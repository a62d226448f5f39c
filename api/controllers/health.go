package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/creatorpay-backend/api/responses"
	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CreatorPay-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency. Nil pingers are skipped so an
// optional dependency can be left out.
func HealthReady(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CreatorPay-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" not ready").
					WithDetails(map[string]any{"dependency": name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
