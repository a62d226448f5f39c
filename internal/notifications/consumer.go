package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/payloads"
)

const payoutNotificationConsumer = "payout-notifications"

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns payout and withdrawal events into creator notifications.
type Consumer struct {
	repo         notificationWriter
	subscription *pubsub.Subscriber
	decoders     payloadDecoder
	idempotency  processedGuard
	logg         *logger.Logger
}

// NewConsumer builds a payout notification consumer.
func NewConsumer(repo notificationWriter, subscription *pubsub.Subscriber, decoders payloadDecoder, guard processedGuard, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("payouts subscription required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("payload decoders required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		decoders:     decoders,
		idempotency:  guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if eventType != enums.EventCreatorPayoutCredited && eventType != enums.EventWalletWithdrawalRequested {
		c.logg.Debug(logCtx, "notifications.skip")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "notifications.decode_envelope_failed", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "notifications.invalid_event_id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	version := envelope.Version
	if version == 0 {
		version = 1
	}
	payload, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "notifications.decode_payload_failed", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, payoutNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "notifications.idempotency_failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "notifications.already_processed")
		return processResult{ack: true}
	}

	notification, err := buildNotification(eventID, payload)
	if err != nil {
		c.logg.Error(logCtx, "notifications.unusable_payload", err)
		return processResult{ack: true}
	}

	created, err := c.repo.Create(ctx, notification)
	if err != nil {
		c.logg.Error(logCtx, "notifications.create_failed", err)
		if relErr := c.idempotency.Release(ctx, payoutNotificationConsumer, eventID); relErr != nil {
			c.logg.Error(logCtx, "notifications.release_claim_failed", relErr)
		}
		return processResult{nack: true}
	}

	logCtx = c.logg.WithField(logCtx, "user_id", notification.UserID.String())
	if !created {
		c.logg.Info(logCtx, "notifications.duplicate")
		return processResult{ack: true}
	}
	c.logg.Info(logCtx, "notifications.created")
	return processResult{ack: true}
}

func buildNotification(eventID uuid.UUID, payload interface{}) (*models.Notification, error) {
	switch event := payload.(type) {
	case *payloads.CreatorPayoutCreditedEvent:
		if event.CreatorID == uuid.Nil {
			return nil, fmt.Errorf("creator id missing")
		}
		return &models.Notification{
			UserID:  event.CreatorID,
			EventID: eventID,
			Type:    enums.NotificationTypePayout,
			Title:   "Payout received",
			Message: fmt.Sprintf("You earned $%s from campaign %s. Your wallet balance is now $%s.",
				event.Amount.StringFixed(2), event.CampaignID, event.NewBalance.StringFixed(2)),
			Link: stringPtr(fmt.Sprintf("/campaigns/%s", event.CampaignID)),
		}, nil
	case *payloads.WalletWithdrawalRequestedEvent:
		if event.UserID == uuid.Nil {
			return nil, fmt.Errorf("user id missing")
		}
		return &models.Notification{
			UserID:  event.UserID,
			EventID: eventID,
			Type:    enums.NotificationTypeWithdrawal,
			Title:   "Withdrawal requested",
			Message: fmt.Sprintf("Your withdrawal of $%s is on its way. Remaining balance: $%s.",
				event.Amount.Abs().StringFixed(2), event.NewBalance.StringFixed(2)),
			Link: stringPtr(fmt.Sprintf("/users/%s/transactions", event.UserID)),
		}, nil
	default:
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
}

func stringPtr(value string) *string {
	return &value
}
