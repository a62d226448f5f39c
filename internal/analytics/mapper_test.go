package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/payloads"
)

func TestBuildRowCreatorCredit(t *testing.T) {
	campaignID, creatorID, txID := uuid.New(), uuid.New(), uuid.New()
	eventID := uuid.New()
	occurred := time.Date(2026, 4, 1, 9, 30, 0, 0, time.FixedZone("x", 3600))

	row, err := BuildRow(Event{
		EventID:       eventID,
		EventType:     string(enums.EventCreatorPayoutCredited),
		AggregateType: string(enums.AggregateUser),
		AggregateID:   creatorID.String(),
		OccurredAt:    occurred,
		Raw:           json.RawMessage(`{"amount":"40.5"}`),
		Payload: &payloads.CreatorPayoutCreditedEvent{
			CampaignID:    campaignID,
			CreatorID:     creatorID,
			TransactionID: txID,
			Amount:        decimal.RequireFromString("40.5"),
			NewBalance:    decimal.RequireFromString("140.5"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, eventID.String(), row.EventID)
	assert.Equal(t, occurred.UTC(), row.OccurredAt)
	assert.Equal(t, campaignID.String(), *row.CampaignID)
	assert.Equal(t, creatorID.String(), *row.UserID)
	assert.Equal(t, txID.String(), *row.TransactionID)
	assert.Equal(t, "81/2", row.Amount.String())
	assert.Equal(t, "281/2", row.BalanceAfter.String())
	assert.True(t, row.Payload.Valid)

	values, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, eventID.String(), insertID)
	assert.Nil(t, values["payment_method"])
	assert.Nil(t, values["creator_count"])
}

func TestBuildRowReleaseAndDeposit(t *testing.T) {
	released, err := BuildRow(Event{
		EventID: uuid.New(),
		Payload: &payloads.CampaignPaymentsReleasedEvent{
			CampaignID:       uuid.New(),
			TotalDistributed: decimal.RequireFromString("100"),
			CreatorCount:     3,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, released.CreatorCount)
	assert.EqualValues(t, 3, *released.CreatorCount)
	assert.Nil(t, released.UserID)
	assert.False(t, released.Payload.Valid)

	deposit, err := BuildRow(Event{
		EventID: uuid.New(),
		Payload: &payloads.CampaignDepositRecordedEvent{
			CampaignID:    uuid.New(),
			TransactionID: uuid.New(),
			Amount:        decimal.RequireFromString("250"),
			PaymentMethod: enums.PaymentMethodPayPal,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, deposit.PaymentMethod)
	assert.Equal(t, string(enums.PaymentMethodPayPal), *deposit.PaymentMethod)
}

func TestBuildRowRejectsUnknownPayload(t *testing.T) {
	_, err := BuildRow(Event{EventID: uuid.New(), Payload: struct{}{}})
	assert.Error(t, err)
}
