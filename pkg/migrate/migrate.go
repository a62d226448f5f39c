package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the on-disk location used by the CLI for create/validate.
const DefaultDir = "pkg/migrate/migrations"

// EmbeddedDir is the directory name inside Migrations.
const EmbeddedDir = "migrations"

// Migrations ships the SQL files inside every binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Run executes a goose command against migrations read from disk.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	return run(ctx, db, nil, dir, command, args...)
}

// RunEmbedded executes a goose command against the embedded migrations.
func RunEmbedded(ctx context.Context, db *sql.DB, command string, args ...string) error {
	return run(ctx, db, Migrations, EmbeddedDir, command, args...)
}

func run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
