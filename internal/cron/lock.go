package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgredis "github.com/angelmondragon/creatorpay-backend/pkg/redis"
)

const defaultLockTTL = 55 * time.Minute

// Lock guarantees a single cron worker runs a cycle at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lease keyed by environment. The TTL bounds how long a
// crashed worker can block the others.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for cron lock")
	}
	if key == "" {
		return nil, errors.New("cron lock key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release deletes the key only while it still carries this holder's token.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, pkgredis.Nil):
		l.token = ""
		return nil
	case err != nil:
		return fmt.Errorf("read cron lock: %w", err)
	}
	if current != l.token {
		l.token = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete cron lock: %w", err)
	}
	l.token = ""
	return nil
}
