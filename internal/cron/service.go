package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams wires the maintenance scheduler.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered maintenance job once per interval while it
// holds the cluster-wide lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(s.logg.WithField(ctx, "event", "cron.stopped"), "maintenance scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event", "cron.cycle_failed"), "maintenance cycle failed", err)
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !acquired {
		s.logg.Info(s.logg.WithField(ctx, "event", "cron.lock_held"), "cron lock held elsewhere; skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	jobs := s.registry.Jobs()
	cycleCtx := s.logg.WithFields(ctx, map[string]any{"event": "cron.cycle", "jobs": len(jobs)})
	s.logg.Info(cycleCtx, "maintenance cycle starting")
	for _, job := range jobs {
		s.runJob(ctx, job)
	}
	s.logg.Info(cycleCtx, "maintenance cycle finished")
	return nil
}

// runJob isolates a single job so one failure never stops the rest of the cycle.
func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"event": "cron.job", "job": name})

	started := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(started)
	s.metrics.ObserveDuration(name, elapsed)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(jobCtx, "maintenance job failed", err)
		return
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(jobCtx, "maintenance job completed")
}
