package blob

import (
	"context"
	"io"

	"github.com/contentlake/bundledb/proto"
)

// BlobStore stores large binary values outside the bundle stream. All
// methods are safe for concurrent use; the codec may call into one store
// from several bundles at once.
type BlobStore interface {
	// CreateID allocates an identifier for the index-th value of the
	// given property.
	CreateID(id proto.PropertyID, index int) string

	// Put streams size bytes from r under blobID, replacing any previous
	// content.
	Put(ctx context.Context, blobID string, r io.Reader, size int64) error

	// Get opens the blob for reading.
	Get(ctx context.Context, blobID string) (io.ReadCloser, error)

	// Remove deletes the blob; it reports whether the blob existed.
	Remove(ctx context.Context, blobID string) (bool, error)
}

// ResourceBlobStore is the optional zero-copy capability: the blob can be
// handed out as a local resource path instead of a stream.
type ResourceBlobStore interface {
	BlobStore

	// GetResource resolves blobID to a local filesystem path.
	GetResource(blobID string) (string, error)
}

// DataStore is an optional content-addressed store for large records. The
// bundle writer sends it every binary value of at least
// MinRecordLength()-1 bytes; shorter values stay inlined in the bundle.
type DataStore interface {
	// MinRecordLength sets the record size threshold; the bundle writer
	// inlines values shorter than MinRecordLength()-1 bytes.
	MinRecordLength() int

	// AddRecord consumes r and returns the record identifier. Identical
	// content yields the identical identifier.
	AddRecord(ctx context.Context, r io.Reader) (string, error)

	// GetRecord opens a record and reports its length.
	GetRecord(ctx context.Context, id string) (io.ReadCloser, int64, error)
}
