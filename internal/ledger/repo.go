package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/pagination"
)

// Repository persists ledger transactions. Rows are append-only: there is
// deliberately no update or delete method.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindCompletedPayout(ctx context.Context, campaignID, creatorID uuid.UUID) (*models.Transaction, error)
	FindDepositByReference(ctx context.Context, campaignID uuid.UUID, reference string) (*models.Transaction, error)
	FindWithdrawalByReference(ctx context.Context, userID uuid.UUID, reference string) (*models.Transaction, error)
	CountCompletedPayouts(ctx context.Context, campaignID uuid.UUID) (int64, error)
	ListCompletedPayouts(ctx context.Context, campaignID uuid.UUID) ([]models.Transaction, error)
	SumByCampaign(ctx context.Context, campaignID uuid.UUID, txnType enums.TransactionType) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, params pagination.Params) ([]models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// FindCompletedPayout returns nil without error when the creator has not
// been paid for the campaign yet.
func (r *repository) FindCompletedPayout(ctx context.Context, campaignID, creatorID uuid.UUID) (*models.Transaction, error) {
	return r.first(r.db.WithContext(ctx).
		Where("type = ? AND status = ?", enums.TransactionTypeCreatorPayout, enums.TransactionStatusCompleted).
		Where("campaign_id = ? AND target_user_id = ?", campaignID, creatorID))
}

// FindDepositByReference returns nil without error when no deposit carries
// the reference.
func (r *repository) FindDepositByReference(ctx context.Context, campaignID uuid.UUID, reference string) (*models.Transaction, error) {
	return r.first(r.db.WithContext(ctx).
		Where("type = ?", enums.TransactionTypeDeposit).
		Where("campaign_id = ? AND payment_reference = ?", campaignID, reference))
}

// FindWithdrawalByReference returns nil without error when the user has no
// withdrawal carrying the reference.
func (r *repository) FindWithdrawalByReference(ctx context.Context, userID uuid.UUID, reference string) (*models.Transaction, error) {
	return r.first(r.db.WithContext(ctx).
		Where("type = ?", enums.TransactionTypeWithdrawal).
		Where("target_user_id = ? AND payment_reference = ?", userID, reference))
}

func (r *repository) first(query *gorm.DB) (*models.Transaction, error) {
	var txn models.Transaction
	err := query.Order("created_at ASC").First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) CountCompletedPayouts(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("type = ? AND status = ?", enums.TransactionTypeCreatorPayout, enums.TransactionStatusCompleted).
		Where("campaign_id = ?", campaignID).
		Count(&count).Error
	return count, err
}

// ListCompletedPayouts returns the campaign's completed creator payouts,
// oldest first.
func (r *repository) ListCompletedPayouts(ctx context.Context, campaignID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", enums.TransactionTypeCreatorPayout, enums.TransactionStatusCompleted).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// SumByCampaign totals completed rows of one type for the campaign.
func (r *repository) SumByCampaign(ctx context.Context, campaignID uuid.UUID, txnType enums.TransactionType) (decimal.Decimal, error) {
	var row struct {
		Total decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("SUM(amount) AS total").
		Where("campaign_id = ? AND type = ? AND status = ?", campaignID, txnType, enums.TransactionStatusCompleted).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, error) {
	return r.page(r.db.WithContext(ctx).Where("target_user_id = ?", userID), params)
}

func (r *repository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, params pagination.Params) ([]models.Transaction, error) {
	return r.page(r.db.WithContext(ctx).Where("campaign_id = ?", campaignID), params)
}

// page fetches one row past the limit so callers can detect a next page.
func (r *repository) page(query *gorm.DB, params pagination.Params) ([]models.Transaction, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Transaction
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
