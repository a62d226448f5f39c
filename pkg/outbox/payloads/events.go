package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// CreatorPayoutCreditedEvent is emitted once per creator when their wallet is
// credited for a campaign.
type CreatorPayoutCreditedEvent struct {
	CampaignID      uuid.UUID       `json:"campaign_id"`
	CreatorID       uuid.UUID       `json:"creator_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	VideoIDs        []uuid.UUID     `json:"video_ids"`
}

// CampaignPaymentsReleasedEvent is emitted when a campaign is finalized.
type CampaignPaymentsReleasedEvent struct {
	CampaignID       uuid.UUID       `json:"campaign_id"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
	CreatorCount     int             `json:"creator_count"`
	UnpaidCount      int             `json:"unpaid_count"`
	ReleasedBy       uuid.UUID       `json:"released_by"`
	ReleasedAt       time.Time       `json:"released_at"`
}

// CampaignDepositRecordedEvent is emitted for each new deposit ledger row.
type CampaignDepositRecordedEvent struct {
	CampaignID       uuid.UUID           `json:"campaign_id"`
	TransactionID    uuid.UUID           `json:"transaction_id"`
	Amount           decimal.Decimal     `json:"amount"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	PaymentReference string              `json:"payment_reference,omitempty"`
}

// WalletWithdrawalRequestedEvent asks the payment rail to send funds out.
type WalletWithdrawalRequestedEvent struct {
	UserID           uuid.UUID       `json:"user_id"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	Amount           decimal.Decimal `json:"amount"`
	PreviousBalance  decimal.Decimal `json:"previous_balance"`
	NewBalance       decimal.Decimal `json:"new_balance"`
	PaymentReference string          `json:"payment_reference,omitempty"`
}
