package analytics

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/payloads"
)

// Event is a decoded outbox message ready to be flattened.
type Event struct {
	EventID       uuid.UUID
	EventType     string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Raw           json.RawMessage
	Payload       any
}

// BuildRow flattens a typed payout payload into a ledger_events row.
func BuildRow(event Event) (*LedgerEventRow, error) {
	row := &LedgerEventRow{
		EventID:       event.EventID.String(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		OccurredAt:    event.OccurredAt.UTC(),
	}
	if len(event.Raw) > 0 {
		row.Payload = bigquery.NullJSON{Valid: true, JSONVal: string(event.Raw)}
	}

	switch p := event.Payload.(type) {
	case *payloads.CreatorPayoutCreditedEvent:
		row.CampaignID = idPtr(p.CampaignID)
		row.UserID = idPtr(p.CreatorID)
		row.TransactionID = idPtr(p.TransactionID)
		row.Amount = rat(p.Amount)
		row.BalanceAfter = rat(p.NewBalance)
	case *payloads.CampaignPaymentsReleasedEvent:
		row.CampaignID = idPtr(p.CampaignID)
		row.UserID = idPtr(p.ReleasedBy)
		row.Amount = rat(p.TotalDistributed)
		count := int64(p.CreatorCount)
		row.CreatorCount = &count
	case *payloads.CampaignDepositRecordedEvent:
		row.CampaignID = idPtr(p.CampaignID)
		row.TransactionID = idPtr(p.TransactionID)
		row.Amount = rat(p.Amount)
		method := string(p.PaymentMethod)
		row.PaymentMethod = &method
	case *payloads.WalletWithdrawalRequestedEvent:
		row.UserID = idPtr(p.UserID)
		row.TransactionID = idPtr(p.TransactionID)
		row.Amount = rat(p.Amount)
		row.BalanceAfter = rat(p.NewBalance)
	default:
		return nil, fmt.Errorf("unsupported payload %T", event.Payload)
	}
	return row, nil
}

func idPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	s := id.String()
	return &s
}

func rat(d decimal.Decimal) *big.Rat {
	return d.Rat()
}
