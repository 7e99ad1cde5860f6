// Package catalog keeps a history of backup runs in a small SQLite database
// at the root of the backup workspace.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/storage"
)

// ErrNotFound is returned by Last when no run is recorded for a name.
var ErrNotFound = errors.New("no recorded runs")

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 50

// Entry is a recorded run.
type Entry struct {
	ID int64
	incremental.Run
}

// Succeeded reports whether the run finished without error.
func (e *Entry) Succeeded() bool {
	return e.Code == 0
}

// Catalog records runs. It implements incremental.Recorder.
type Catalog struct {
	db *storage.DB
}

var _ incremental.Recorder = (*Catalog)(nil)

// Open migrates and opens the catalog at path.
func Open(path string) (*Catalog, error) {
	config := storage.DefaultConfig(path)
	// Creates the parent directory before migrate touches the file.
	db, err := storage.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := migrateUp(path); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the catalog database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record implements incremental.Recorder.
func (c *Catalog) Record(ctx context.Context, run incremental.Run) error {
	return c.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (
				workspace, name, operation, engine_version, started_at, duration_ms,
				pages_scanned, pages_written, bytes_written, meta, code, message
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.Workspace, run.Name, string(run.Operation), int(run.EngineVer),
			run.StartedAt.UnixNano(), run.Duration.Milliseconds(),
			run.PagesScanned, run.PagesWritten, run.BytesWritten,
			run.Meta, run.Code, run.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		return nil
	})
}

const selectRuns = `
	SELECT id, workspace, name, operation, engine_version, started_at, duration_ms,
		pages_scanned, pages_written, bytes_written, meta, code, message
	FROM runs`

// List returns up to limit runs for name, newest first. An empty name lists
// every unit in the workspace.
func (c *Catalog) List(ctx context.Context, name string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(selectRuns)
	if name != "" {
		query.WriteString(" WHERE name = ?")
		args = append(args, name)
	}
	query.WriteString(" ORDER BY started_at DESC, id DESC LIMIT ?")
	args = append(args, limit)

	rows, err := c.db.Conn().QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return entries, nil
}

// Last returns the newest run for name, or ErrNotFound.
func (c *Catalog) Last(ctx context.Context, name string) (*Entry, error) {
	row := c.db.Conn().QueryRowContext(ctx, selectRuns+" WHERE name = ? ORDER BY started_at DESC, id DESC LIMIT 1", name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e          Entry
		op         string
		version    int
		startedAt  int64
		durationMs int64
	)
	err := s.Scan(&e.ID, &e.Workspace, &e.Name, &op, &version, &startedAt, &durationMs,
		&e.PagesScanned, &e.PagesWritten, &e.BytesWritten, &e.Meta, &e.Code, &e.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	e.Operation = incremental.Operation(op)
	e.EngineVer = incremental.Version(version)
	e.StartedAt = time.Unix(0, startedAt)
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return &e, nil
}
