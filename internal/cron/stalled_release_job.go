package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

const (
	defaultStalledAfter = 15 * time.Minute
	stalledScanLimit    = 100
)

type stalledReleaseFinder interface {
	ListStalledReleases(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

type StalledReleaseJobParams struct {
	Logger     *logger.Logger
	Repository stalledReleaseFinder
	After      time.Duration
}

// NewStalledReleaseJob reports campaigns that have credited payouts older than
// After but were never flagged as released. Retrying the release call for the
// same creators reuses the existing payouts and completes the flip.
func NewStalledReleaseJob(params StalledReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("campaign repository required")
	}
	after := params.After
	if after <= 0 {
		after = defaultStalledAfter
	}
	return &stalledReleaseJob{
		logg:  params.Logger,
		repo:  params.Repository,
		after: after,
		now:   time.Now,
	}, nil
}

type stalledReleaseJob struct {
	logg  *logger.Logger
	repo  stalledReleaseFinder
	after time.Duration
	now   func() time.Time
}

func (j *stalledReleaseJob) Name() string { return "stalled_release_scan" }

func (j *stalledReleaseJob) Run(ctx context.Context) error {
	before := j.now().UTC().Add(-j.after)
	ids, err := j.repo.ListStalledReleases(ctx, before, stalledScanLimit)
	if err != nil {
		return fmt.Errorf("list stalled releases: %w", err)
	}
	for _, id := range ids {
		warnCtx := j.logg.WithCampaignID(j.logg.WithField(ctx, "event", "payout.release_stalled"), id.String())
		j.logg.Warn(warnCtx, "campaign has credited payouts but was never marked released")
	}
	j.logg.Info(j.logg.WithField(ctx, "stalled_count", len(ids)), "stalled release scan done")
	return nil
}
