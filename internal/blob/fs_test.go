package blob_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrm-ticketing/internal/blob"
)

func TestFSStoreRoundtrip(t *testing.T) {
	store := blob.NewFSStore(t.TempDir())
	ctx := context.Background()

	meta := blob.Metadata{"no": "1", "ref": "aa11ff00"}
	require.NoError(t, store.Upload(ctx, "qrcodes/2025-06-01/ticket_aa11ff00.png",
		[]byte("png-bytes"), meta))

	got, err := store.Metadata(ctx, "qrcodes/2025-06-01/ticket_aa11ff00.png")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	rc, err := store.Open(ctx, "qrcodes/2025-06-01/ticket_aa11ff00.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestFSStoreListSplitsFoldersAndItems(t *testing.T) {
	store := blob.NewFSStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "qrcodes/2025-06-02/b.png", []byte("b"), nil))
	require.NoError(t, store.Upload(ctx, "qrcodes/2025-06-01/a.png", []byte("a"),
		blob.Metadata{"no": "1"}))

	listing, err := store.List(ctx, "qrcodes")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-01", "2025-06-02"}, listing.Folders)
	assert.Empty(t, listing.Items)

	listing, err = store.List(ctx, "qrcodes/2025-06-01")
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)
	assert.Equal(t, "a.png", listing.Items[0].Name)
	assert.Equal(t, "1", listing.Items[0].Meta["no"])
}

func TestFSStoreListHidesSidecars(t *testing.T) {
	store := blob.NewFSStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "qrcodes/f/a.png", []byte("a"),
		blob.Metadata{"no": "1"}))

	listing, err := store.List(ctx, "qrcodes/f")
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)
	assert.Equal(t, "a.png", listing.Items[0].Name)
}

func TestFSStoreMissingPrefixEmptyListing(t *testing.T) {
	store := blob.NewFSStore(t.TempDir())

	listing, err := store.List(context.Background(), "qrcodes/nowhere")
	require.NoError(t, err)
	assert.Empty(t, listing.Folders)
	assert.Empty(t, listing.Items)
}

func TestFSStoreMetadataMissingSidecar(t *testing.T) {
	store := blob.NewFSStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "qrcodes/f/a.png", []byte("a"), nil))

	meta, err := store.Metadata(ctx, "qrcodes/f/a.png")
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestFSStoreCancelledContext(t *testing.T) {
	store := blob.NewFSStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Upload(ctx, "qrcodes/f/a.png", []byte("a"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
