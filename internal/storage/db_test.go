package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("test.db")

	if config.Path != "test.db" {
		t.Errorf("expected path 'test.db', got '%s'", config.Path)
	}

	if config.MaxOpenConns != 25 {
		t.Errorf("expected MaxOpenConns 25, got %d", config.MaxOpenConns)
	}

	if config.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("expected ConnMaxLifetime 5m, got %v", config.ConnMaxLifetime)
	}

	if config.BusyTimeout != 5*time.Second {
		t.Errorf("expected BusyTimeout 5s, got %v", config.BusyTimeout)
	}

	if config.JournalMode != "WAL" {
		t.Errorf("expected JournalMode 'WAL', got '%s'", config.JournalMode)
	}
}

func TestConfigDSN(t *testing.T) {
	config := DefaultConfig("/tmp/x.db")
	dsn := config.DSN()

	if !strings.HasPrefix(dsn, "/tmp/x.db?") {
		t.Fatalf("unexpected dsn prefix: %s", dsn)
	}
	for _, want := range []string{"busy_timeout%285000%29", "journal_mode%28WAL%29", "synchronous%28NORMAL%29"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}

	mem := DefaultConfig(MemoryPath).DSN()
	if strings.Contains(mem, "journal_mode") {
		t.Errorf("in-memory dsn should not set journal mode: %s", mem)
	}
}

func TestOpen(t *testing.T) {
	config := DefaultConfig(MemoryPath)
	db, err := Open(config)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Errorf("failed to ping database: %v", err)
	}

	if db.Conn() == nil {
		t.Error("expected non-nil connection")
	}

	if db.Conn().Stats().MaxOpenConnections != 1 {
		t.Errorf("in-memory database should use one connection, got %d", db.Conn().Stats().MaxOpenConnections)
	}
}

func TestOpenAppliesJournalMode(t *testing.T) {
	config := DefaultConfig(filepath.Join(t.TempDir(), "sub", "wal.db"))
	db, err := Open(config)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected wal journal mode, got %q", mode)
	}
}

func TestOpenWithNilConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := Open(&Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestWithTransaction(t *testing.T) {
	db := OpenTestDB(t, "tx.db")
	SeedRows(t, db, 1, 1)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM items"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := CountRows(t, db.Conn()); n != 1 {
		t.Errorf("rollback should keep the row, got %d rows", n)
	}

	err = db.WithReadTransaction(ctx, func(tx *sql.Tx) error {
		var n int
		return tx.QueryRowContext(ctx, "SELECT count(*) FROM items").Scan(&n)
	})
	if err != nil {
		t.Errorf("read transaction failed: %v", err)
	}
}
