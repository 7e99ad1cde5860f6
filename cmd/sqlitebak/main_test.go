package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/storage"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

type cli struct {
	t         *testing.T
	config    string
	workspace string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{
		t:         t,
		config:    filepath.Join(dir, "missing.toml"),
		workspace: filepath.Join(dir, "backups"),
	}
}

// exec runs sqlitebak with the test config and workspace prepended.
func (c *cli) exec(args ...string) (int, string, string) {
	c.t.Helper()

	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", c.config, "--workspace", c.workspace, "--no-color"}, args...)
	code := run(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func seededDB(t *testing.T) string {
	t.Helper()

	db := storage.OpenTestDB(t, "app.db")
	storage.SeedRows(t, db, 0, 100)
	return db.Path()
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"backup missing", &incremental.Error{Kind: incremental.KindBackupMissing}, 4},
		{"integrity", fmt.Errorf("wrapped: %w", &incremental.Error{Kind: incremental.KindIntegrityCheck}), 3},
		{"locked", &incremental.Error{Kind: incremental.KindLocked}, 7},
		{"usage", usagef("bad flag"), exitUsage},
		{"other", errors.New("boom"), exitUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestBackupVerifyHistory(t *testing.T) {
	c := newCLI(t)
	dbPath := seededDB(t)

	code, out, stderr := c.exec("--db", dbPath, "backup")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Backed up")

	u := workspace.Unit{Dir: c.workspace, Name: "app"}
	assert.True(t, workspace.Exists(u.ManifestPath()))
	assert.True(t, workspace.Exists(u.ImagePath()))

	code, out, stderr = c.exec("--db", dbPath, "verify")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "is consistent")

	code, out, stderr = c.exec("--name", "app", "history")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Runs (2)")
	assert.Contains(t, out, "backup")
	assert.Contains(t, out, "verify")
}

func TestRestoreIntoFreshDatabase(t *testing.T) {
	c := newCLI(t)
	dbPath := seededDB(t)

	code, _, stderr := c.exec("--db", dbPath, "backup")
	require.Equal(t, 0, code, stderr)

	restored := filepath.Join(t.TempDir(), "restored.db")
	code, out, stderr := c.exec("--db", restored, "--name", "app", "restore", "--reference", dbPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Restored")

	db, err := storage.Open(storage.DefaultConfig(restored))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 100, storage.CountRows(t, db.Conn()))
}

func TestRestoreWithoutBackup(t *testing.T) {
	c := newCLI(t)
	dbPath := seededDB(t)

	code, _, stderr := c.exec("--db", dbPath, "restore")
	assert.Equal(t, incremental.KindBackupMissing.Code(), code)
	assert.Contains(t, stderr, "(4)")
}

func TestClear(t *testing.T) {
	c := newCLI(t)
	dbPath := seededDB(t)

	code, _, stderr := c.exec("--db", dbPath, "backup")
	require.Equal(t, 0, code, stderr)

	code, out, stderr := c.exec("--name", "app", "clear")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Cleared")

	u := workspace.Unit{Dir: c.workspace, Name: "app"}
	assert.False(t, workspace.Exists(u.ManifestPath()))
	assert.False(t, workspace.Exists(u.ImagePath()))
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no name or db", []string{"backup"}},
		{"missing database", []string{"--db", filepath.Join(t.TempDir(), "nope.db"), "backup"}},
		{"unknown flag", []string{"backup", "--bogus"}},
		{"extra argument", []string{"--name", "app", "clear", "extra"}},
		{"invalid name", []string{"--name", "../app", "clear"}},
		{"mirror disabled", []string{"--name", "app", "push"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := c.exec(tt.args...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestVersion(t *testing.T) {
	c := newCLI(t)

	code, out, _ := c.exec("version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "sqlitebak dev")
	assert.Contains(t, out, "v1")
}
