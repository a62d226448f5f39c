package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/creatorpay-backend/pkg/config"
)

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i := 1; i <= 3; i++ {
		count, err := client.IncrWithTTL(ctx, "cp:rate_limit:actor:1", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != int64(i) {
			t.Fatalf("expected counter %d got %d", i, count)
		}
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected a single expire call, got %d", len(mock.expireCalls))
	}
	if mock.expireCalls[0].ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", mock.expireCalls[0].ttl)
	}
}

func TestIdempotencyStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.IdempotencyKey("actor", "abc")

	ok, err := client.SetNX(ctx, key, "in_progress", time.Hour)
	if err != nil || !ok {
		t.Fatalf("first SetNX should win: ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "in_progress", time.Hour)
	if err != nil || ok {
		t.Fatalf("second SetNX should lose: ok=%v err=%v", ok, err)
	}
	if err := client.Set(ctx, key, "done", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil || got != "done" {
		t.Fatalf("unexpected value %q err=%v", got, err)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, key); err != Nil {
		t.Fatalf("expected Nil after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "cp:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("money", "actor", "u1"); got != "cp:rate_limit:money:actor:u1" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.RateLimitKey("money", "", " ip "); got != "cp:rate_limit:money:ip" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on nil raw should be a no-op: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2, PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/3", PoolSize: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.Password != "pw" || opts.PoolSize != 4 {
		t.Fatalf("unexpected url options %+v", opts)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
