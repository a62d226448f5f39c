package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

type fakeStalledFinder struct {
	ids    []uuid.UUID
	before time.Time
	limit  int
	err    error
}

func (f *fakeStalledFinder) ListStalledReleases(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	f.before = before
	f.limit = limit
	return f.ids, f.err
}

func TestStalledReleaseJobWarnsPerCampaign(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "cron-test", Level: zerolog.InfoLevel, Format: "json", Output: &buf})
	stalled := uuid.New()
	repo := &fakeStalledFinder{ids: []uuid.UUID{stalled}}

	job, err := NewStalledReleaseJob(StalledReleaseJobParams{Logger: logg, Repository: repo, After: 30 * time.Minute})
	require.NoError(t, err)
	now := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)
	job.(*stalledReleaseJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-30*time.Minute), repo.before)
	assert.Equal(t, stalledScanLimit, repo.limit)
	assert.Contains(t, buf.String(), stalled.String())
	assert.Contains(t, buf.String(), "payout.release_stalled")
}

func TestStalledReleaseJobErrors(t *testing.T) {
	job, err := NewStalledReleaseJob(StalledReleaseJobParams{
		Logger:     logger.Nop(),
		Repository: &fakeStalledFinder{err: errors.New("timeout")},
	})
	require.NoError(t, err)
	assert.Equal(t, defaultStalledAfter, job.(*stalledReleaseJob).after)
	assert.ErrorContains(t, job.Run(context.Background()), "timeout")

	_, err = NewStalledReleaseJob(StalledReleaseJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
