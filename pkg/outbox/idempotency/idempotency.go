package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the slice of the redis client the manager needs.
type Store interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// Manager records which outbox event ids a consumer has handled so Pub/Sub
// redeliveries are acknowledged without side effects.
// Keys look like `cp:idempotency:evt:<consumer>:<event_id>`.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager builds a guard that remembers processed events for ttl.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether eventID was already handled by
// consumer and claims it otherwise.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Release drops the claim so a failed event can be retried on redelivery.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:%s", consumer), eventID.String()), nil
}
