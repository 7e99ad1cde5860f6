package mirror

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/pagesource"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backedUpUnit creates a Backup Unit holding three pages.
func backedUpUnit(t *testing.T) (workspace.Unit, *pagesource.Memory) {
	t.Helper()

	u, err := workspace.NewUnit(t.TempDir(), "app")
	require.NoError(t, err)
	e, err := incremental.New(incremental.VersionV1, u, nil, incremental.WithLogger(quietLogger()))
	require.NoError(t, err)

	db := pagesource.NewMemory(512)
	db.Set(1, []byte("one"))
	db.Set(2, []byte("two"))
	db.Set(3, []byte("three"))
	_, err = e.Backup(context.Background(), db)
	require.NoError(t, err)
	return u, db
}

func TestPushPull(t *testing.T) {
	store := NewMemoryStore()
	m := New(store, nil, quietLogger())
	ctx := context.Background()

	u, db := backedUpUnit(t)
	require.NoError(t, m.Push(ctx, u))

	infos, err := m.Remote(ctx, u)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// Pull into a fresh workspace and restore from it.
	dst := workspace.Unit{Dir: filepath.Join(t.TempDir(), "restored"), Name: u.Name}
	require.NoError(t, m.Pull(ctx, dst))

	wantImage, _ := os.ReadFile(u.ImagePath())
	gotImage, err := os.ReadFile(dst.ImagePath())
	require.NoError(t, err)
	assert.Equal(t, wantImage, gotImage)

	e, err := incremental.New(incremental.VersionV1, dst, nil, incremental.WithLogger(quietLogger()))
	require.NoError(t, err)
	restored := pagesource.NewMemory(512)
	require.NoError(t, e.Restore(ctx, restored, db))
	assert.Equal(t, db.Snapshot(), restored.Snapshot())

	leftovers, err := filepath.Glob(filepath.Join(dst.Dir, ".pull-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPullRejectsCorruptManifest(t *testing.T) {
	store := NewMemoryStore()
	m := New(store, nil, quietLogger())
	ctx := context.Background()

	u, _ := backedUpUnit(t)
	require.NoError(t, m.Push(ctx, u))
	require.True(t, store.Corrupt(ManifestKey(u), 9))

	local, err := os.ReadFile(u.ManifestPath())
	require.NoError(t, err)

	err = m.Pull(ctx, u)
	assert.ErrorIs(t, err, ErrCorrupt)

	after, err := os.ReadFile(u.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, local, after, "local manifest must be untouched")
}

func TestPullMissing(t *testing.T) {
	m := New(NewMemoryStore(), nil, quietLogger())
	u, err := workspace.NewUnit(t.TempDir(), "ghost")
	require.NoError(t, err)

	err = m.Pull(context.Background(), u)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, workspace.Exists(u.ImagePath()))
}

func TestPushWithoutLocalBackup(t *testing.T) {
	m := New(NewMemoryStore(), nil, quietLogger())
	u, err := workspace.NewUnit(t.TempDir(), "empty")
	require.NoError(t, err)

	assert.Error(t, m.Push(context.Background(), u))
}

func TestDelete(t *testing.T) {
	store := NewMemoryStore()
	m := New(store, nil, quietLogger())
	ctx := context.Background()

	u, _ := backedUpUnit(t)
	require.NoError(t, m.Push(ctx, u))
	require.NoError(t, m.Delete(ctx, u))

	_, err := store.Stat(ctx, ManifestKey(u))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Stat(ctx, ImageKey(u))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Delete(ctx, u), "deleting twice is not an error")
}

func TestKeys(t *testing.T) {
	u := workspace.Unit{Dir: "/w", Name: "app"}
	assert.Equal(t, "app/.app.manifest", ManifestKey(u))
	assert.Equal(t, "app/app_backup.sqlite", ImageKey(u))
}
