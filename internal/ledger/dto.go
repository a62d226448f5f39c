package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/pagination"
	"github.com/angelmondragon/creatorpay-backend/pkg/types"
)

// AppendInput captures the immutable data of a ledger row.
type AppendInput struct {
	Type             enums.TransactionType
	Status           enums.TransactionStatus
	Amount           decimal.Decimal
	ActorID          uuid.UUID
	TargetUserID     *uuid.UUID
	CampaignID       *uuid.UUID
	PaymentMethod    *enums.PaymentMethod
	PaymentReference string
	PreviousBalance  *decimal.Decimal
	ResultingBalance *decimal.Decimal
}

// TransactionDTO is the API view of a ledger row.
type TransactionDTO struct {
	ID               uuid.UUID               `json:"id"`
	Type             enums.TransactionType   `json:"type"`
	Status           enums.TransactionStatus `json:"status"`
	Amount           decimal.Decimal         `json:"amount"`
	ActorID          uuid.UUID               `json:"actorId"`
	TargetUserID     *uuid.UUID              `json:"targetUserId,omitempty"`
	CampaignID       *uuid.UUID              `json:"campaignId,omitempty"`
	PaymentMethod    *enums.PaymentMethod    `json:"paymentMethod,omitempty"`
	PaymentReference string                  `json:"paymentReference,omitempty"`
	PreviousBalance  *decimal.Decimal        `json:"previousBalance,omitempty"`
	ResultingBalance *decimal.Decimal        `json:"resultingBalance,omitempty"`
	CreatedAt        time.Time               `json:"createdAt"`
}

// TransactionPage is a cursor page of ledger rows.
type TransactionPage = types.Page[TransactionDTO]

// FromModel converts a transaction row to its API view.
func FromModel(txn models.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:               txn.ID,
		Type:             txn.Type,
		Status:           txn.Status,
		Amount:           txn.Amount,
		ActorID:          txn.ActorID,
		TargetUserID:     txn.TargetUserID,
		CampaignID:       txn.CampaignID,
		PaymentMethod:    txn.PaymentMethod,
		PaymentReference: txn.PaymentReference,
		CreatedAt:        txn.CreatedAt,
	}
	if txn.PreviousBalance.Valid {
		prev := txn.PreviousBalance.Decimal
		dto.PreviousBalance = &prev
	}
	if txn.ResultingBalance.Valid {
		next := txn.ResultingBalance.Decimal
		dto.ResultingBalance = &next
	}
	return dto
}

func toPage(rows []models.Transaction, limit int) TransactionPage {
	rows, next := pagination.Trim(rows, limit, func(txn models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: txn.CreatedAt, ID: txn.ID}
	})
	items := make([]TransactionDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return TransactionPage{Items: items, NextCursor: next}
}
