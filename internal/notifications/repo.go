package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/db"
	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/pagination"
)

const eventUserConstraint = "ux_notifications_event_user"

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) (bool, error)
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Create inserts the notification and reports false when the same event was
// already turned into a notification for the user.
func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) (bool, error) {
	err := r.db.WithContext(ctx).Create(notification).Error
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err, eventUserConstraint) {
		return false, nil
	}
	return false, err
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", params.UserID)
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return notificationMarkResult{}, result.Error
	}

	mark := notificationMarkResult{Updated: result.RowsAffected > 0}
	if mark.Updated {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Count(&count).Error; err != nil {
		return notificationMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteReadBefore purges notifications the user read before cutoff.
func (r *repositoryImpl) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
