// Package databasetest opens the Postgres database used by repository tests.
package databasetest

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"libraryrental/internal/database"
)

// Open connects to TEST_DATABASE_URL and applies the schema. The test is
// skipped when the variable is unset or the server is unreachable.
func Open(tb testing.TB) *sqlx.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		tb.Skip("TEST_DATABASE_URL not set; skipping postgres test")
	}
	ctx := context.Background()
	db, err := database.Open(ctx, dsn)
	if err != nil {
		tb.Skipf("could not connect to postgres: %v", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}
