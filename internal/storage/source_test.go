package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/sqlite-incbackup/internal/pagesource"
)

func collectPages(t *testing.T, src pagesource.Source) [][]byte {
	t.Helper()

	var pages [][]byte
	err := src.Pages(context.Background(), func(pgno int, data []byte) error {
		if pgno != len(pages)+1 {
			t.Fatalf("page %d delivered out of order", pgno)
		}
		pages = append(pages, append([]byte(nil), data...))
		return nil
	})
	require.NoError(t, err)
	return pages
}

func TestSourcePages(t *testing.T) {
	db := OpenTestDB(t, "src.db")
	SeedRows(t, db, 1, 100)
	ctx := context.Background()
	src := db.Source()

	count, err := src.PageCount(ctx)
	require.NoError(t, err)
	require.Greater(t, count, 1)

	pageSize, err := src.PageSize(ctx)
	require.NoError(t, err)

	pages := collectPages(t, src)
	require.Len(t, pages, count)
	for i, p := range pages {
		assert.Lenf(t, p, pageSize, "page %d", i+1)
	}

	hdr, err := ParseHeader(pages[0])
	require.NoError(t, err)
	assert.Equal(t, pageSize, hdr.PageSize)
}

func TestSourcePagesMatchesFile(t *testing.T) {
	db := OpenTestDB(t, "file.db")
	SeedRows(t, db, 1, 50)
	src := db.Source()

	pages := collectPages(t, src)

	raw, err := os.ReadFile(db.Path())
	require.NoError(t, err)
	assert.Equal(t, raw, bytes.Join(pages, nil))
}

func TestSourcePage(t *testing.T) {
	db := OpenTestDB(t, "page.db")
	SeedRows(t, db, 1, 40)
	ctx := context.Background()
	src := db.Source()

	pages := collectPages(t, src)

	first, err := src.Page(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, pages[0], first)

	last, err := src.Page(ctx, len(pages))
	require.NoError(t, err)
	assert.Equal(t, pages[len(pages)-1], last)

	_, err = src.Page(ctx, len(pages)+1)
	assert.True(t, errors.Is(err, pagesource.ErrNoPage), "got %v", err)

	_, err = src.Page(ctx, 0)
	assert.True(t, errors.Is(err, pagesource.ErrNoPage), "got %v", err)
}

func TestSourceEmptyDatabase(t *testing.T) {
	db := OpenTestDB(t, "empty.db")
	ctx := context.Background()
	src := db.Source()

	count, err := src.PageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.Empty(t, collectPages(t, src))

	_, err = src.Page(ctx, 1)
	assert.True(t, errors.Is(err, pagesource.ErrNoPage), "got %v", err)
}

func TestSourceMode(t *testing.T) {
	db := OpenTestDB(t, "mode.db")
	mode, err := db.Source().Mode(context.Background())
	require.NoError(t, err)
	assert.Contains(t, []string{"dbpage", "serialize"}, mode)
}

func TestSourcePagesCallbackError(t *testing.T) {
	db := OpenTestDB(t, "cb.db")
	SeedRows(t, db, 1, 20)

	stop := errors.New("stop")
	calls := 0
	err := db.Source().Pages(context.Background(), func(int, []byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestSourceRestoreFrom(t *testing.T) {
	src := OpenTestDB(t, "orig.db")
	SeedRows(t, src, 1, 80)
	want := collectPages(t, src.Source())

	image := filepath.Join(t.TempDir(), "image.sqlite")
	require.NoError(t, os.WriteFile(image, bytes.Join(want, nil), 0o644))

	dst := OpenTestDB(t, "dst.db")
	require.NoError(t, dst.Source().RestoreFrom(context.Background(), image))

	assert.Equal(t, want, collectPages(t, dst.Source()))
	assert.Equal(t, 80, CountRows(t, dst.Conn()))
}

func TestSourceRestoreFromInvalidImage(t *testing.T) {
	dst := OpenTestDB(t, "dst.db")
	SeedRows(t, dst, 1, 5)
	before := collectPages(t, dst.Source())

	image := filepath.Join(t.TempDir(), "junk.sqlite")
	require.NoError(t, os.WriteFile(image, bytes.Repeat([]byte{0xAB}, 4096), 0o644))

	err := dst.Source().RestoreFrom(context.Background(), image)
	require.Error(t, err)
	assert.Equal(t, before, collectPages(t, dst.Source()))
}
