package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/pagesource"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	c, err := Open(filepath.Join(t.TempDir(), workspace.CatalogFileName))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", workspace.CatalogFileName)

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestRecordAndList(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runs := []incremental.Run{
		{Workspace: "/w", Name: "app", Operation: incremental.OpBackup, EngineVer: incremental.VersionV1, StartedAt: base, Duration: 1500 * time.Millisecond, PagesScanned: 10, PagesWritten: 10, BytesWritten: 40960, Meta: "00000000deadbeef"},
		{Workspace: "/w", Name: "other", Operation: incremental.OpBackup, EngineVer: incremental.VersionV1, StartedAt: base.Add(time.Minute)},
		{Workspace: "/w", Name: "app", Operation: incremental.OpRestore, EngineVer: incremental.VersionV1, StartedAt: base.Add(2 * time.Minute), Code: 3, Message: "(3) integrity check failed"},
	}
	for _, r := range runs {
		require.NoError(t, c.Record(ctx, r))
	}

	app, err := c.List(ctx, "app", 10)
	require.NoError(t, err)
	require.Len(t, app, 2)
	assert.Equal(t, incremental.OpRestore, app[0].Operation)
	assert.False(t, app[0].Succeeded())
	assert.Equal(t, "(3) integrity check failed", app[0].Message)

	first := app[1]
	assert.True(t, first.Succeeded())
	assert.Equal(t, 10, first.PagesWritten)
	assert.Equal(t, int64(40960), first.BytesWritten)
	assert.Equal(t, "00000000deadbeef", first.Meta)
	assert.Equal(t, 1500*time.Millisecond, first.Duration)
	assert.True(t, base.Equal(first.StartedAt))
	assert.Equal(t, incremental.VersionV1, first.EngineVer)

	all, err := c.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := c.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "app", limited[0].Name)
}

func TestLast(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	_, err := c.Last(ctx, "app")
	assert.True(t, errors.Is(err, ErrNotFound))

	now := time.Now()
	require.NoError(t, c.Record(ctx, incremental.Run{Name: "app", Operation: incremental.OpBackup, StartedAt: now}))
	require.NoError(t, c.Record(ctx, incremental.Run{Name: "app", Operation: incremental.OpVerify, StartedAt: now.Add(time.Second)}))

	last, err := c.Last(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, incremental.OpVerify, last.Operation)
}

func TestRecordRejectsUnknownOperation(t *testing.T) {
	c := openTestCatalog(t)
	err := c.Record(context.Background(), incremental.Run{Name: "app", Operation: "compact", StartedAt: time.Now()})
	assert.Error(t, err)
}

func TestCatalogAsEngineRecorder(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, workspace.CatalogFileName))
	require.NoError(t, err)
	defer c.Close()

	u, err := workspace.NewUnit(dir, "app")
	require.NoError(t, err)
	e, err := incremental.New(incremental.VersionV1, u, nil, incremental.WithRecorder(c))
	require.NoError(t, err)

	db := pagesource.NewMemory(512)
	db.Set(1, []byte("first"))
	db.Set(2, []byte("second"))
	ctx := context.Background()

	stats, err := e.Backup(ctx, db)
	require.NoError(t, err)
	require.NoError(t, e.Clear(ctx))

	entries, err := c.List(ctx, "app", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, incremental.OpClear, entries[0].Operation)
	assert.Equal(t, incremental.OpBackup, entries[1].Operation)
	assert.Equal(t, stats.Meta.String(), entries[1].Meta)
	assert.Equal(t, dir, entries[1].Workspace)
}
