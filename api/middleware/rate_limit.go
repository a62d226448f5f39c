package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/creatorpay-backend/api/responses"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// RateLimitPolicy defines the throttling parameters for a traffic surface.
type RateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	actorLimit int
}

// NewRateLimitPolicy builds a policy with the supplied window and limits.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, actorLimit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		actorLimit: actorLimit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.actorLimit > 0)
}

func (p RateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "money"
	}
	return p.name
}

func (p RateLimitPolicy) key(scope, value string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf("rl:%s:%s:%s", scope, p.normalizedName(), value)
}

// RateLimit enforces per-IP and per-actor counters. It must run after Auth
// for the actor counter to apply.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			checks := []struct {
				scope string
				value string
				limit int
			}{
				{scope: "ip", value: clientIP(r), limit: policy.ipLimit},
				{scope: "actor", value: UserIDFromContext(ctx), limit: policy.actorLimit},
			}
			for _, check := range checks {
				if check.limit <= 0 {
					continue
				}
				key := policy.key(check.scope, check.value)
				if key == "" {
					continue
				}
				allowed, count, err := allow(ctx, store, key, policy.window, int64(check.limit))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					respondRateLimited(ctx, logg, w, policy, check.scope, check.value, count, check.limit)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, store rateLimiterStore, key string, window time.Duration, limit int64) (bool, int64, error) {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, scope, value string, count int64, limit int) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"subject":        value,
			"policy":         policy.normalizedName(),
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		})
		logg.Warn(logCtx, "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(policy.window.Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
