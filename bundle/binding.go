package bundle

import "github.com/contentlake/bundledb/blob"

// Bundle format versions. The version byte at offset 0 selects the
// decoder; encoders always emit VersionCurrent.
const (
	Version1       = 1
	VersionCurrent = Version1
)

// Reserved 32-bit sentinels marking a binary value that lives outside the
// bundle. Both are negative so they can never collide with an in-line
// length prefix.
const (
	BinaryInBlobStore int32 = -1
	BinaryInDataStore int32 = -2
)

const defaultMinBlobSize = 0x1000 // 4k

// Binding carries the external collaborators and thresholds shared by the
// writers and readers of one persistence unit. A Binding is immutable and
// safe for concurrent use; the per-stream state lives in Writer/Reader.
type Binding struct {
	// BlobStore receives binary values larger than MinBlobSize.
	BlobStore blob.BlobStore

	// DataStore, if present, takes precedence over BlobStore for values
	// of at least DataStore.MinRecordLength()-1 bytes.
	DataStore blob.DataStore

	// MinBlobSize is the largest binary value kept inline when no data
	// store is configured.
	MinBlobSize int64
}

func NewBinding(blobStore blob.BlobStore) *Binding {
	return &Binding{BlobStore: blobStore, MinBlobSize: defaultMinBlobSize}
}
