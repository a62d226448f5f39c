package wallets

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
)

// Repository reads and mutates creator wallets. Balance changes must go
// through LockForUpdate inside a transaction first.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateWallet(ctx context.Context, id uuid.UUID, wallet decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a wallets repository to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LockForUpdate reads the user row with SELECT ... FOR UPDATE.
func (r *repository) LockForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdateWallet(ctx context.Context, id uuid.UUID, wallet decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("wallet", wallet)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
