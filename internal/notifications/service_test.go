package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/pagination"
)

type fakeRepository struct {
	listFn        func(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

func (f *fakeRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) (bool, error) {
	return true, nil
}

func (f *fakeRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, userID, notificationID, now)
	}
	return notificationMarkResult{}, nil
}

func (f *fakeRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, userID, now)
	}
	return 0, nil
}

func newServiceWithRepo(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc
}

func TestServiceListNotifications(t *testing.T) {
	first := models.Notification{ID: uuid.New(), CreatedAt: time.Now()}
	second := models.Notification{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Hour)}

	repo := &fakeRepository{
		listFn: func(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
			assert.Equal(t, 1, params.Limit)
			assert.Nil(t, params.Cursor)
			return []models.Notification{first, second}, nil
		},
	}

	result, err := newServiceWithRepo(t, repo).List(context.Background(), ListParams{UserID: uuid.New(), Limit: 1})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, first.ID, result.Items[0].ID)
	require.NotEmpty(t, result.NextCursor)

	decoded, err := pagination.ParseCursor(result.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, first.ID, decoded.ID)
}

func TestServiceListNotificationsInvalidInput(t *testing.T) {
	svc := newServiceWithRepo(t, &fakeRepository{})

	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "bad"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListParams{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestServiceListNotificationsRepoError(t *testing.T) {
	repo := &fakeRepository{
		listFn: func(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
			return nil, errors.New("boom")
		},
	}
	_, err := newServiceWithRepo(t, repo).List(context.Background(), ListParams{UserID: uuid.New()})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestServiceMarkRead(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
			return notificationMarkResult{Found: true, Updated: true}, nil
		},
	}
	require.NoError(t, newServiceWithRepo(t, repo).MarkRead(context.Background(), uuid.New(), uuid.New()))
}

func TestServiceMarkReadNotFound(t *testing.T) {
	svc := newServiceWithRepo(t, &fakeRepository{})
	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	err = svc.MarkRead(context.Background(), uuid.New(), uuid.Nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestServiceMarkAllRead(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
			return 3, nil
		},
	}
	count, err := newServiceWithRepo(t, repo).MarkAllRead(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestServiceMarkAllReadError(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
			return 0, errors.New("boom")
		},
	}
	_, err := newServiceWithRepo(t, repo).MarkAllRead(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}
