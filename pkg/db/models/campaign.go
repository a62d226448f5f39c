package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Campaign is the authoritative campaign record. FundsReleased is terminal:
// once true the receipt is attached and payouts are frozen.
type Campaign struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                  string                 `gorm:"column:name;not null"`
	Budget                decimal.Decimal        `gorm:"column:budget;type:numeric(14,2);not null;default:0"`
	RatePerMillion        decimal.Decimal        `gorm:"column:rate_per_million;type:numeric(14,2);not null;default:0"`
	FundsReleased         bool                   `gorm:"column:funds_released;not null;default:false"`
	PaymentReleaseReceipt *PaymentReleaseReceipt `gorm:"column:payment_release_receipt;type:jsonb"`
	PaymentsReleasedBy    *uuid.UUID             `gorm:"column:payments_released_by;type:uuid"`
	PaymentsReleasedAt    *time.Time             `gorm:"column:payments_released_at"`
	Videos                []Video                `gorm:"foreignKey:CampaignID"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
