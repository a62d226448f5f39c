package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Release outcomes recorded by PayoutMetrics.
const (
	OutcomeReleased        = "released"
	OutcomeAlreadyReleased = "already_released"
	OutcomePendingReview   = "pending_review"
	OutcomePartial         = "partial"
	OutcomeFailed          = "failed"
)

// PayoutMetrics records release and ledger activity.
type PayoutMetrics struct {
	releases  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	credits   *prometheus.CounterVec
	credited  prometheus.Counter
	deposits  *prometheus.CounterVec
	withdrawn prometheus.Counter
}

// NewPayoutMetrics registers the payout metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	releases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_releases_total",
		Help: "Release attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_release_duration_seconds",
		Help:    "Duration of release attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_creator_credits_total",
		Help: "Creator credit steps by result (credited or reused).",
	}, []string{"result"})
	credited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_credited_amount_total",
		Help: "Sum of newly credited payout amounts.",
	})
	deposits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_deposits_total",
		Help: "Recorded deposits by payment method.",
	}, []string{"method"})
	withdrawn := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_withdrawn_amount_total",
		Help: "Sum of wallet withdrawals.",
	})
	reg.MustRegister(releases, duration, credits, credited, deposits, withdrawn)
	return &PayoutMetrics{
		releases:  releases,
		duration:  duration,
		credits:   credits,
		credited:  credited,
		deposits:  deposits,
		withdrawn: withdrawn,
	}
}

// ObserveRelease records one release attempt.
func (m *PayoutMetrics) ObserveRelease(outcome string, elapsed time.Duration) {
	if m == nil || m.releases == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.releases.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveCredit records a creator credit step. reused is true when an earlier
// run already wrote the transaction.
func (m *PayoutMetrics) ObserveCredit(amount decimal.Decimal, reused bool) {
	if m == nil || m.credits == nil {
		return
	}
	if reused {
		m.credits.WithLabelValues("reused").Inc()
		return
	}
	m.credits.WithLabelValues("credited").Inc()
	m.credited.Add(amount.InexactFloat64())
}

// ObserveDeposit counts a newly recorded deposit.
func (m *PayoutMetrics) ObserveDeposit(method string) {
	if m == nil || m.deposits == nil {
		return
	}
	m.deposits.WithLabelValues(normalizeLabel(method)).Inc()
}

// ObserveWithdrawal adds a debited amount.
func (m *PayoutMetrics) ObserveWithdrawal(amount decimal.Decimal) {
	if m == nil || m.withdrawn == nil {
		return
	}
	m.withdrawn.Add(amount.Abs().InexactFloat64())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
