package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User carries the creator wallet. Wallet only moves through the payout
// credit and withdrawal debit paths, both under a row lock.
type User struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string          `gorm:"column:email;not null"`
	Username     string          `gorm:"column:username;not null"`
	PaymentEmail *string         `gorm:"column:payment_email"`
	Wallet       decimal.Decimal `gorm:"column:wallet;type:numeric(14,2);not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
