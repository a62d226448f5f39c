package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/metrics"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// outcome is what happened to one outbox row in a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

// batchTally counts row outcomes for the batch log line.
type batchTally struct {
	published    int
	retried      int
	deadLettered int
}

func (t *batchTally) add(o outcome) {
	switch o {
	case outcomePublished:
		t.published++
	case outcomeRetry:
		t.retried++
	case outcomeDeadLettered:
		t.deadLettered++
	}
}

type ServiceParams struct {
	Outbox           config.OutboxConfig
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service drains outbox_events to Pub/Sub. Rows are claimed with SKIP LOCKED
// so several publishers can run side by side.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if params.DLQRepository == nil {
		return nil, errors.New("dlq repository is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	batch := params.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxAttempts := params.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:             logg,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		metrics:          params.Metrics,
		batchSize:        batch,
		maxAttempts:      maxAttempts,
		pollInterval:     poll,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{name: "database", ping: s.db.Ping},
		{name: "pubsub", ping: s.pubsub.Ping},
	}
	for _, check := range checks {
		if err := check.ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", check.name), "outbox.ping_failed", err)
			return fmt.Errorf("%s ping failed: %w", check.name, err)
		}
	}
	return nil
}

// Run polls until ctx ends. An idle poll waits one interval; failed batches
// back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	idle := idleBackoff(s.pollInterval)
	failing := errorBackoff(s.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox.stopped")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait, _ = failing.Next()
		case processed:
			failing = errorBackoff(s.pollInterval)
			continue
		default:
			failing = errorBackoff(s.pollInterval)
			wait, _ = idle.Next()
		}
		if err := sleep(ctx, wait); err != nil {
			s.logg.Info(ctx, "outbox.stopped")
			return err
		}
	}
}

func idleBackoff(interval time.Duration) retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.NewConstant(interval))
}

func errorBackoff(interval time.Duration) retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.WithCappedDuration(maxBackoff, retry.NewExponential(interval)))
}

// processBatch claims one batch in a transaction and settles every row in it.
// It reports whether any row was claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var tally batchTally
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			result, err := s.settle(ctx, tx, event)
			if err != nil {
				return err
			}
			tally.add(result)
		}
		return nil
	})
	if err == nil && claimed > 0 {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"claimed":       claimed,
			"published":     tally.published,
			"retried":       tally.retried,
			"dead_lettered": tally.deadLettered,
		}), "outbox.batch")
	}
	return claimed > 0, err
}

// settle publishes one row and records the result on it. The returned error
// is reserved for bookkeeping failures that must abort the batch.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, logFields(event, nil))
	}

	fields := logFields(event, resolved)
	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox.published")
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		terminal := fmt.Errorf("max publish attempts reached: %w", pubErr)
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminal, fields)
	}

	fields["error"] = pubErr.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.publish_failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	s.metrics.IncFailed(string(event.EventType))
	return outcomeRetry, nil
}

// deadLetter parks the row in outbox_dlq and stops further attempts on it.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.dead_lettered")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageAttributes lets subscribers route and dedupe without decoding the
// envelope.
func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if envelope.Version > 0 {
		attrs["envelope_version"] = strconv.Itoa(envelope.Version)
	}
	return attrs
}

func logFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// gcpPublisher adapts the Pub/Sub publisher to the narrow publisher
// interface so tests can swap it.
type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{pub: p}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	res := p.pub.Publish(ctx, msg)
	if res == nil {
		return nil
	}
	return res
}
