package campaigns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// Repository persists campaigns and the videos submitted to them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, campaign *models.Campaign) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	MarkVideosPaid(ctx context.Context, campaignID uuid.UUID, videoIDs []uuid.UUID) error
	FinalizeRelease(ctx context.Context, input FinalizeInput) (bool, error)
	ListStalledReleases(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

// FinalizeInput is the terminal write of a release.
type FinalizeInput struct {
	CampaignID uuid.UUID
	Receipt    *models.PaymentReleaseReceipt
	ReleasedBy uuid.UUID
	ReleasedAt time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a campaigns repository to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the campaign together with any videos attached to it.
func (r *repository) Create(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

// FindByID loads the campaign with its videos in display order.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Preload("Videos", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("id ASC")
		}).
		First(&campaign, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// Exists checks for the campaign without loading its videos.
func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) MarkVideosPaid(ctx context.Context, campaignID uuid.UUID, videoIDs []uuid.UUID) error {
	if len(videoIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("campaign_id = ? AND id IN ?", campaignID, videoIDs).
		UpdateColumn("has_been_paid", true).Error
}

// FinalizeRelease flips funds_released and stores the receipt in one
// conditional write. It reports false when another release already won.
func (r *repository) FinalizeRelease(ctx context.Context, input FinalizeInput) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ? AND funds_released = ?", input.CampaignID, false).
		Updates(map[string]any{
			"funds_released":          true,
			"payment_release_receipt": input.Receipt,
			"payments_released_by":    input.ReleasedBy,
			"payments_released_at":    input.ReleasedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListStalledReleases returns unreleased campaigns that already carry a
// completed payout older than before. Those releases were interrupted after
// crediting started and need another release call to finish.
func (r *repository) ListStalledReleases(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	credited := r.db.Model(&models.Transaction{}).
		Select("1").
		Where("transactions.campaign_id = campaigns.id").
		Where("transactions.type = ? AND transactions.status = ?", enums.TransactionTypeCreatorPayout, enums.TransactionStatusCompleted).
		Where("transactions.created_at < ?", before)

	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("funds_released = ?", false).
		Where("EXISTS (?)", credited).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
