package analytics

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
)

// LedgerEventRow mirrors the ledger_events table. One row per outbox event.
type LedgerEventRow struct {
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	CampaignID    *string
	UserID        *string
	TransactionID *string
	Amount        *big.Rat
	BalanceAfter  *big.Rat
	CreatorCount  *int64
	PaymentMethod *string
	Payload       bigquery.NullJSON
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert id
// so redelivered events are dropped by BigQuery's best-effort dedup.
func (r *LedgerEventRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"event_id":       r.EventID,
		"event_type":     r.EventType,
		"aggregate_type": r.AggregateType,
		"aggregate_id":   r.AggregateID,
		"occurred_at":    r.OccurredAt,
		"campaign_id":    nullable(r.CampaignID),
		"user_id":        nullable(r.UserID),
		"transaction_id": nullable(r.TransactionID),
		"amount":         nullableRat(r.Amount),
		"balance_after":  nullableRat(r.BalanceAfter),
		"creator_count":  nullableInt(r.CreatorCount),
		"payment_method": nullable(r.PaymentMethod),
		"payload":        r.Payload,
	}, r.EventID, nil
}

func nullable(v *string) bigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}

func nullableRat(v *big.Rat) bigquery.Value {
	if v == nil {
		return nil
	}
	return v
}

func nullableInt(v *int64) bigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}
