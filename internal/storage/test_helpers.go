package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

// OpenTestDB opens a rollback-journal database file under t.TempDir() and
// closes it when the test ends. It is exported for use in other package tests.
func OpenTestDB(t testing.TB, name string) *DB {
	t.Helper()

	config := DefaultConfig(filepath.Join(t.TempDir(), name))
	config.JournalMode = "DELETE"
	db, err := Open(config)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// SeedRows creates the items table if needed and upserts rows [from, from+n)
// with bodies long enough to spread over several pages.
func SeedRows(t testing.TB, db *DB, from, n int) {
	t.Helper()

	ctx := context.Background()
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS items (id INTEGER PRIMARY KEY, body TEXT)"); err != nil {
			return err
		}
		for i := from; i < from+n; i++ {
			body := fmt.Sprintf("row-%d-%s", i, strings.Repeat("x", 200))
			if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO items (id, body) VALUES (?, ?)", i, body); err != nil {
				return fmt.Errorf("insert row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to seed rows: %v", err)
	}
}

// CountRows returns the number of rows in the items table.
func CountRows(t testing.TB, db *sql.DB) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT count(*) FROM items").Scan(&n); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	return n
}
