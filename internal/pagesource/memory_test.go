package pagesource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPagesInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	m.Set(2, []byte("bb"))
	m.Set(1, []byte("aaaa"))

	n, err := m.PageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var seen []int
	err = m.Pages(ctx, func(pgno int, data []byte) error {
		seen = append(seen, pgno)
		assert.Len(t, data, 4)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)

	p, err := m.Page(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{'b', 'b', 0, 0}, p)

	_, err = m.Page(ctx, 3)
	assert.ErrorIs(t, err, ErrNoPage)
}

func TestMemoryPagesStopsOnCallbackError(t *testing.T) {
	m := NewMemory(2)
	m.Set(3, nil)
	stop := errors.New("stop")

	calls := 0
	err := m.Pages(context.Background(), func(int, []byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestMemoryRestoreFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, os.WriteFile(path, []byte("aabbcc"), 0o644))

	m := NewMemory(2)
	m.Set(1, []byte("zz"))
	require.NoError(t, m.RestoreFrom(context.Background(), path))
	assert.Equal(t, [][]byte{[]byte("aa"), []byte("bb"), []byte("cc")}, m.Snapshot())
	assert.Equal(t, 1, m.Restores())

	m.FailRestore = true
	assert.Error(t, m.RestoreFrom(context.Background(), path))
	assert.Equal(t, 1, m.Restores())

	odd := filepath.Join(t.TempDir(), "odd")
	require.NoError(t, os.WriteFile(odd, []byte("abc"), 0o644))
	m.FailRestore = false
	assert.Error(t, m.RestoreFrom(context.Background(), odd))
	assert.Len(t, m.Snapshot(), 3)
}
