package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the violated
// constraint must match it. SQLite messages are recognised so repository tests
// exercise the same branch.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation && (constraintName == "" || pgxErr.ConstraintName == constraintName)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && (constraintName == "" || pqErr.Constraint == constraintName)
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		// sqlite reports columns, not index names
		return true
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}
