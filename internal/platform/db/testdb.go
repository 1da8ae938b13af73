package db

import (
	"context"
	"database/sql"
	"testing"
)

// NewTestDB creates a fresh in-memory SQLite database with the schema applied.
// Everything runs on one connection, so code under a transaction must only
// use the tx it was handed.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := Migrate(context.Background(), db, DriverSQLite); err != nil {
		db.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}
