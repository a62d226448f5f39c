package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// Transaction is an append-only ledger row. Amount is signed: deposits and
// payouts are positive, withdrawals negative, so sum(amount) is the net position.
type Transaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type             enums.TransactionType   `gorm:"column:type;type:transaction_type_enum;not null"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	ActorID          uuid.UUID               `gorm:"column:actor_id;type:uuid;not null"`
	TargetUserID     *uuid.UUID              `gorm:"column:target_user_id;type:uuid"`
	CampaignID       *uuid.UUID              `gorm:"column:campaign_id;type:uuid"`
	Status           enums.TransactionStatus `gorm:"column:status;type:transaction_status_enum;not null"`
	PaymentMethod    *enums.PaymentMethod    `gorm:"column:payment_method;type:payment_method_enum"`
	PaymentReference string                  `gorm:"column:payment_reference;not null;default:''"`
	PreviousBalance  decimal.NullDecimal     `gorm:"column:previous_balance;type:numeric(14,2)"`
	ResultingBalance decimal.NullDecimal     `gorm:"column:resulting_balance;type:numeric(14,2)"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
