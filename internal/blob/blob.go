package blob

import (
	"context"
	"io"
)

// Metadata is the custom key/value set attached to an uploaded object; the
// generator tags QR images with {no, ref} so exports can recover ordering
// without re-parsing filenames.
type Metadata map[string]string

// Item is one stored object under a listed prefix.
type Item struct {
	Name string
	Meta Metadata
}

// Listing splits a prefix's children into sub-folders and objects, matching
// how remote object stores answer list calls.
type Listing struct {
	Folders []string
	Items   []Item
}

// Store is the blob-store collaborator contract. The remote implementation
// lives outside this system; FSStore below is the local form used by the
// gallery sink, tests, and single-box deployments.
type Store interface {
	Upload(ctx context.Context, path string, data []byte, meta Metadata) error
	List(ctx context.Context, prefix string) (Listing, error)
	Metadata(ctx context.Context, path string) (Metadata, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
