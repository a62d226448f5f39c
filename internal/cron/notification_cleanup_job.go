package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

const defaultNotificationRetentionDays = 90

type readNotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger        *logger.Logger
	Repository    readNotificationPurger
	RetentionDays int
}

// NewNotificationCleanupJob removes notifications that were read more than
// RetentionDays ago. Unread notifications are kept indefinitely.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("notifications repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultNotificationRetentionDays
	}
	return &notificationCleanupJob{
		logg: params.Logger,
		repo: params.Repository,
		days: days,
		now:  time.Now,
	}, nil
}

type notificationCleanupJob struct {
	logg *logger.Logger
	repo readNotificationPurger
	days int
	now  func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification_cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)
	deleted, err := j.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge read notifications: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "notification cleanup done")
	return nil
}
