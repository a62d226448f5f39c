// Package dbtest opens throwaway sqlite databases carrying the payout schema.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/creatorpay-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE campaigns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		budget NUMERIC NOT NULL DEFAULT 0,
		rate_per_million NUMERIC NOT NULL DEFAULT 0,
		funds_released BOOLEAN NOT NULL DEFAULT 0,
		payment_release_receipt TEXT,
		payments_released_by TEXT,
		payments_released_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE campaign_videos (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL REFERENCES campaigns(id),
		position INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL,
		author_id TEXT,
		status TEXT NOT NULL CHECK (status IN ('pending','approved','denied')),
		earnings NUMERIC NOT NULL DEFAULT 0 CHECK (earnings >= 0),
		views INTEGER NOT NULL DEFAULT 0,
		has_been_paid BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		username TEXT NOT NULL,
		payment_email TEXT,
		wallet NUMERIC NOT NULL DEFAULT 0 CHECK (wallet >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('deposit','creator_payout','withdrawal')),
		amount NUMERIC NOT NULL,
		actor_id TEXT NOT NULL,
		target_user_id TEXT,
		campaign_id TEXT,
		status TEXT NOT NULL CHECK (status IN ('pending','completed','failed')),
		payment_method TEXT,
		payment_reference TEXT NOT NULL DEFAULT '',
		previous_balance NUMERIC,
		resulting_balance NUMERIC,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_transactions_campaign_payout ON transactions (campaign_id, target_user_id)
		WHERE type = 'creator_payout' AND status = 'completed'`,
	`CREATE UNIQUE INDEX ux_transactions_deposit_reference ON transactions (campaign_id, payment_reference)
		WHERE type = 'deposit' AND payment_reference <> ''`,
	`CREATE UNIQUE INDEX ux_transactions_withdrawal_reference ON transactions (target_user_id, payment_reference)
		WHERE type = 'withdrawal' AND payment_reference <> ''`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT,
		read_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_notifications_event_user ON notifications (event_id, user_id)`,
}

// Open returns a private in-memory database with every table created. The
// pool is pinned to one connection so concurrent callers serialize the way
// row locks make them serialize on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// Client wraps Open in a db.Client for code that needs WithTx.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromConn(Open(t))
}
