package mirror

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	client, err := NewMinioClient(MinioOptions{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	store := NewMinioStore(client, "test-sqlitebak", "it/")
	require.NoError(t, store.EnsureBucket(ctx, ""))

	data := []byte("manifest bytes")
	require.NoError(t, store.Put(ctx, "app/.app.manifest", bytes.NewReader(data), int64(len(data))))

	info, err := store.Stat(ctx, "app/.app.manifest")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)

	rc, err := store.Get(ctx, "app/.app.manifest")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, data, got)

	keys, err := store.List(ctx, "app/")
	require.NoError(t, err)
	assert.Contains(t, keys, "app/.app.manifest")

	require.NoError(t, store.Delete(ctx, "app/.app.manifest"))
	_, err = store.Get(ctx, "app/.app.manifest")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Stat(ctx, "app/.app.manifest")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, "app/.app.manifest"))
}
