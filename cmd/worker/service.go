package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(context.Context) error
}

type ServiceParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	PubSub               pinger
	NotificationConsumer consumer
	// BigQuery and AnalyticsConsumer are optional; both or neither.
	BigQuery          pinger
	AnalyticsConsumer consumer
}

type Service struct {
	cfg                  *config.Config
	logg                 *logger.Logger
	db                   pinger
	redis                pinger
	pubsub               pinger
	bigquery             pinger
	notificationConsumer consumer
	analyticsConsumer    consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.NotificationConsumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	if (params.BigQuery == nil) != (params.AnalyticsConsumer == nil) {
		return nil, errors.New("bigquery client and analytics consumer must be set together")
	}

	return &Service{
		cfg:                  params.Config,
		logg:                 params.Logger,
		db:                   params.DB,
		redis:                params.Redis,
		pubsub:               params.PubSub,
		bigquery:             params.BigQuery,
		notificationConsumer: params.NotificationConsumer,
		analyticsConsumer:    params.AnalyticsConsumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	if s.bigquery != nil {
		if err := pingDependency(ctx, s.logg, "bigquery", s.bigquery.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until ctx ends or any consumer stops; the first consumer error
// cancels the others.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.runConsumer(groupCtx, "notifications", s.notificationConsumer)
	})
	if s.analyticsConsumer != nil {
		group.Go(func() error {
			return s.runConsumer(groupCtx, "ledger-analytics", s.analyticsConsumer)
		})
	}

	err := group.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctxErr
	}
	return err
}

func (s *Service) runConsumer(ctx context.Context, name string, c consumer) error {
	err := c.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(s.logg.WithField(ctx, "consumer", name), "consumer stopped unexpectedly", err)
		return fmt.Errorf("%s consumer: %w", name, err)
	}
	if err == nil && ctx.Err() == nil {
		return fmt.Errorf("%s consumer exited", name)
	}
	return err
}
