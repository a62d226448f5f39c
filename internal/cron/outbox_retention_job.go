package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

const defaultOutboxRetentionDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxPurger
	RetentionDays int
}

// NewOutboxRetentionJob purges outbox rows that were published more than
// RetentionDays ago. Pending and parked rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	return &outboxRetentionJob{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		days: days,
		now:  time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg *logger.Logger
	db   txRunner
	repo outboxPurger
	days int
	now  func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox_retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)

	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("purge published outbox rows: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox retention done")
	return nil
}
