package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
)

const ledgerAnalyticsConsumer = "ledger-analytics"

type rowWriter interface {
	Write(ctx context.Context, row *LedgerEventRow) error
	Flush(ctx context.Context) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer copies every payout outbox event into the ledger_events table.
type Consumer struct {
	subscription *pubsub.Subscriber
	writer       rowWriter
	decoders     payloadDecoder
	guard        processedGuard
	logg         *logger.Logger
}

func NewConsumer(subscription *pubsub.Subscriber, writer rowWriter, decoders payloadDecoder, guard processedGuard, logg *logger.Logger) (*Consumer, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription required")
	case writer == nil:
		return nil, errors.New("analytics writer required")
	case decoders == nil:
		return nil, errors.New("payload decoders required")
	case guard == nil:
		return nil, errors.New("idempotency manager required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &Consumer{
		subscription: subscription,
		writer:       writer,
		decoders:     decoders,
		guard:        guard,
		logg:         logg,
	}, nil
}

// Run receives until ctx ends, then flushes any buffered rows.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Nack()
			return
		}
		msg.Ack()
	})

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if flushErr := c.writer.Flush(flushCtx); flushErr != nil {
		c.logg.Error(ctx, "analytics.flush_failed", flushErr)
	}
	return err
}

// process returns true when the message should be redelivered.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := enums.OutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "analytics.decode_envelope_failed", err)
		return false
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "analytics.invalid_event_id", err)
		return false
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	version := envelope.Version
	if version == 0 {
		version = 1
	}
	payload, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "analytics.skip_unknown_event")
		return false
	}

	occurredAt := envelope.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, msg.Attributes["created_at"]); err == nil {
			occurredAt = parsed
		}
	}
	row, err := BuildRow(Event{
		EventID:       eventID,
		EventType:     string(eventType),
		AggregateType: msg.Attributes["aggregate_type"],
		AggregateID:   msg.Attributes["aggregate_id"],
		OccurredAt:    occurredAt,
		Raw:           envelope.Data,
		Payload:       payload,
	})
	if err != nil {
		c.logg.Error(logCtx, "analytics.unusable_payload", err)
		return false
	}

	already, err := c.guard.CheckAndMarkProcessed(ctx, ledgerAnalyticsConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "analytics.idempotency_failed", err)
		return true
	}
	if already {
		c.logg.Debug(logCtx, "analytics.already_processed")
		return false
	}

	if err := c.writer.Write(ctx, row); err != nil {
		c.logg.Error(logCtx, "analytics.write_failed", err)
		if relErr := c.guard.Release(ctx, ledgerAnalyticsConsumer, eventID); relErr != nil {
			c.logg.Error(logCtx, "analytics.release_claim_failed", relErr)
		}
		return true
	}
	c.logg.Info(logCtx, "analytics.row_written")
	return false
}
