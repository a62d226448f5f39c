package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// PaymentReleaseReceipt is the immutable audit record attached to a campaign
// when its payouts are released. It is stored as jsonb.
type PaymentReleaseReceipt struct {
	CampaignID       uuid.UUID       `json:"campaignId"`
	WalletUpdates    []WalletUpdate  `json:"walletUpdates"`
	UnpaidVideos     []UnpaidVideo   `json:"unpaidVideos"`
	TotalDistributed decimal.Decimal `json:"totalDistributed"`
	CreatorCount     int             `json:"creatorCount"`
	ReleasedBy       uuid.UUID       `json:"releasedBy"`
	ReleasedAt       time.Time       `json:"releasedAt"`
}

// WalletUpdate records one creator credit.
type WalletUpdate struct {
	UserID         uuid.UUID       `json:"userId"`
	PreviousWallet decimal.Decimal `json:"previousWallet"`
	PayoutAmount   decimal.Decimal `json:"payoutAmount"`
	NewWallet      decimal.Decimal `json:"newWallet"`
	TransactionID  uuid.UUID       `json:"transactionId"`
	VideoIDs       []uuid.UUID     `json:"videoIds"`
	UserData       UserSnapshot    `json:"userData"`
}

// UserSnapshot freezes the creator's contact data at release time.
type UserSnapshot struct {
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	PaymentEmail *string `json:"paymentEmail,omitempty"`
}

// UnpaidVideo lists a video whose earnings were not paid in the release.
type UnpaidVideo struct {
	VideoID  uuid.UUID         `json:"videoId"`
	AuthorID *uuid.UUID        `json:"authorId,omitempty"`
	URL      string            `json:"url"`
	Status   enums.VideoStatus `json:"status"`
	Earnings decimal.Decimal   `json:"earnings"`
	Reason   string            `json:"reason"`
}

// Value marshals the receipt for the jsonb column.
func (r PaymentReleaseReceipt) Value() (driver.Value, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("receipt: marshal: %w", err)
	}
	return string(payload), nil
}

// Scan decodes the jsonb column.
func (r *PaymentReleaseReceipt) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("receipt: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, r)
}
