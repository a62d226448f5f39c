package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks maintenance job runs by job name.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCronJobMetrics registers the job collectors on reg. A nil registerer
// yields a recorder that drops every observation.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of maintenance jobs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_success_total",
			Help: "Maintenance job runs that returned no error.",
		}, []string{"job"}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_failure_total",
			Help: "Maintenance job runs that returned an error.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.success, m.failure)
	return m
}

func (m *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (m *CronJobMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
}

func (m *CronJobMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}
