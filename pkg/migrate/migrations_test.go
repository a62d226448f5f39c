package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func readEmbedded(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(Migrations, EmbeddedDir+"/*_"+suffix+".sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, got %v", suffix, matches)
	}
	data, err := fs.ReadFile(Migrations, matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks ...string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	if err := ValidateFS(Migrations, EmbeddedDir); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestTransactionsMigrationGuardsLedger(t *testing.T) {
	content := readEmbedded(t, "create_transactions")
	assertContains(t, content,
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_campaign_payout",
		"WHERE type = 'creator_payout' AND status = 'completed'",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_deposit_reference",
		"chk_transactions_sign",
		"completed transactions are immutable",
		"DROP TABLE IF EXISTS transactions",
	)
}

func TestWalletAndCampaignConstraints(t *testing.T) {
	assertContains(t, readEmbedded(t, "create_users"), "wallet numeric(14,2) NOT NULL DEFAULT 0 CHECK (wallet >= 0)")
	assertContains(t, readEmbedded(t, "create_campaigns"),
		"funds_released boolean NOT NULL DEFAULT false",
		"CHECK (NOT funds_released OR payment_release_receipt IS NOT NULL)",
		"CHECK (earnings >= 0)",
	)
}

func TestValidateFSRejectsBadNames(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20260101000000_ok.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"m/2026_bad.sql":          {Data: []byte("-- +goose Up\n-- +goose Down\n")},
	}
	if err := ValidateFS(fsys, "m"); err == nil {
		t.Fatal("expected invalid filename error")
	}

	fsys = fstest.MapFS{
		"m/20260101000000_missing_down.sql": {Data: []byte("-- +goose Up\n")},
	}
	if err := ValidateFS(fsys, "m"); err == nil {
		t.Fatal("expected missing down error")
	}

	if err := ValidateFS(fstest.MapFS{"m/readme.txt": {}}, "m"); err == nil {
		t.Fatal("expected empty dir error")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Payout Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(filepath.Base(path), "_add_payout_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read created migration: %v", err)
	}
	assertContains(t, string(data), "-- +goose Up", "-- +goose Down")
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}

	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected sanitized-empty name error")
	}
}


func TestRetentionIndexesMigration(t *testing.T) {
	assertContains(t, readEmbedded(t, "add_retention_indexes"),
		"idx_outbox_events_published_at",
		"idx_notifications_read_at",
		"WHERE funds_released = false",
		"DROP INDEX IF EXISTS idx_campaigns_unreleased",
	)
}

func TestWithdrawalReferenceMigration(t *testing.T) {
	assertContains(t, readEmbedded(t, "add_withdrawal_reference_index"),
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_withdrawal_reference",
		"WHERE type = 'withdrawal' AND payment_reference <> ''",
		"DROP INDEX IF EXISTS ux_transactions_withdrawal_reference",
	)
}
