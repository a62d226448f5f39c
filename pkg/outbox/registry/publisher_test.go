package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	creatorID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.CreatorPayoutCreditedEvent{
		CampaignID: uuid.New(),
		CreatorID:  creatorID,
		Amount:     decimal.RequireFromString("40"),
	})

	event := models.OutboxEvent{
		EventType:     enums.EventCreatorPayoutCredited,
		AggregateType: enums.AggregateUser,
		AggregateID:   creatorID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "payouts-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.CreatorPayoutCreditedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.CreatorID != creatorID || !payload.Amount.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("order_created"),
			AggregateType: enums.AggregateCampaign,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventCampaignPaymentsReleased,
			AggregateType: enums.AggregateUser,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventCampaignPaymentsReleased,
			AggregateType: enums.AggregateCampaign,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventCampaignDepositRecorded,
			AggregateType: enums.AggregateCampaign,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventCampaignDepositRecorded,
			AggregateType: enums.AggregateCampaign,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected missing topic error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{PayoutsTopic: "payouts-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
