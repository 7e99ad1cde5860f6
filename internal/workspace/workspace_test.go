package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitPaths(t *testing.T) {
	u, err := NewUnit("/var/backups", "test")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/var/backups", ".test.manifest"), u.ManifestPath())
	assert.Equal(t, filepath.Join("/var/backups", "test_backup.sqlite"), u.ImagePath())
	assert.Equal(t, filepath.Join("/var/backups", ".test.lock"), u.LockPath())
	assert.Equal(t, filepath.Join("/var/backups", ".catalog.db"), u.CatalogPath())

	u.Ext = ".db"
	assert.Equal(t, filepath.Join("/var/backups", "test_backup.db"), u.ImagePath())
	assert.Equal(t, u.ImagePath()+"-wal", u.SidecarPaths()[0])
}

func TestUnitValidate(t *testing.T) {
	cases := []struct {
		dir, name string
		ok        bool
	}{
		{"/w", "db", true},
		{"", "db", false},
		{"/w", "", false},
		{"/w", "..", false},
		{"/w", "a/b", false},
		{"/w", `a\b`, false},
	}
	for _, c := range cases {
		_, err := NewUnit(c.dir, c.name)
		if c.ok {
			assert.NoError(t, err, "%q/%q", c.dir, c.name)
		} else {
			assert.ErrorIs(t, err, ErrInvalidName, "%q/%q", c.dir, c.name)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, EnsureDir(file))
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	assert.NoError(t, RemoveIfExists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.True(t, Exists(path))
	assert.NoError(t, RemoveIfExists(path))
	assert.False(t, Exists(path))
}

func TestLockExcludesSecondHolder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locking is a no-op on windows")
	}
	u, err := NewUnit(t.TempDir(), "db")
	require.NoError(t, err)

	first, err := Acquire(u)
	require.NoError(t, err)

	_, err = Acquire(u)
	assert.True(t, errors.Is(err, ErrLocked), "got %v", err)

	require.NoError(t, first.Release())

	again, err := Acquire(u)
	require.NoError(t, err)
	require.NoError(t, again.Release())
	assert.NoError(t, (*Lock)(nil).Release())
}
