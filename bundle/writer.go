package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/cubefs/cubefs/blobstore/util/log"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/metrics"
	"github.com/contentlake/bundledb/proto"
)

// Writer serializes node bundles to one output stream. It is bound to a
// single goroutine; the only shared state it touches is the thread-safe
// Binding.
//
// The default namespace and the first six other namespace URIs appearing
// in the bundle are interned in a seven-slot table; slot 0 is fixed to
// the default URI. The reader rebuilds the identical table from the
// first-appearance order.
type Writer struct {
	binding    *Binding
	out        dataOutput
	namespaces [7]string
	nsUsed     [7]bool
}

// NewWriter creates a bundle serializer and emits the format version
// byte.
func NewWriter(binding *Binding, w io.Writer) (*Writer, error) {
	bw := &Writer{binding: binding, out: dataOutput{w: w}}
	bw.nsUsed[0] = true // slot 0: default namespace
	if err := bw.out.writeByte(VersionCurrent); err != nil {
		return nil, err
	}
	return bw, nil
}

// WriteBundle serializes one bundle. The bundle's size field is set to
// the number of bytes produced. Large binary values may be moved to the
// binding's data store or blob store as a side effect; the affected
// value slots are replaced by store references.
func (w *Writer) WriteBundle(ctx context.Context, b *NodeBundle) error {
	start := w.out.size()

	if err := w.writeName(b.PrimaryType); err != nil {
		return err
	}
	if err := w.writeNodeID(b.ParentID, !b.ParentID.IsZero()); err != nil {
		return err
	}

	for _, mixin := range b.MixinTypes {
		if err := w.writeName(mixin); err != nil {
			return err
		}
	}
	if err := w.writeName(proto.Name{}); err != nil {
		return err
	}

	for _, entry := range b.Properties {
		// skip the redundant primaryType, mixinTypes and uuid properties
		name := entry.ID.Name
		if name == namePrimaryType || name == nameMixinTypes || name == nameUUID {
			continue
		}
		if err := w.writeName(name); err != nil {
			return err
		}
		if err := w.writeState(ctx, entry); err != nil {
			return err
		}
	}
	if err := w.writeName(proto.Name{}); err != nil {
		return err
	}

	if err := w.out.writeBool(b.Referenceable); err != nil {
		return err
	}

	for _, entry := range b.ChildEntries {
		if err := w.writeNodeID(entry.ID, true); err != nil {
			return err
		}
		if err := w.writeName(entry.Name); err != nil {
			return err
		}
	}
	if err := w.writeNodeID(proto.NodeID{}, false); err != nil {
		return err
	}

	if err := w.out.writeVarInt(uint32(b.ModCount)); err != nil {
		return err
	}

	for _, id := range b.SharedSet {
		if err := w.writeNodeID(id, true); err != nil {
			return err
		}
	}
	if err := w.writeNodeID(proto.NodeID{}, false); err != nil {
		return err
	}

	b.SetSize(w.out.size() - start)
	metrics.BundleWriteSize.Observe(float64(b.Size()))
	return nil
}

// writeState serializes a property entry. The single header byte packs
// the multi-value count into the high nibble and the property type into
// the low nibble; a count of 0 marks a single-valued property. For
// multi-valued properties the stored count is len(values)+1, truncated
// at 15 with the overflow as a varint.
func (w *Writer) writeState(ctx context.Context, entry *PropertyEntry) error {
	typ := entry.Type
	if typ < 0 || typ > 0x0f || !proto.ValidType(typ) {
		return fmt.Errorf("property %s has unserializable type %d", entry.ID, typ)
	}
	if entry.MultiValued {
		l := len(entry.Values) + 1
		if l < 0x0f {
			if err := w.out.writeByte(byte(l<<4 | typ)); err != nil {
				return err
			}
		} else {
			if err := w.out.writeByte(byte(0xf0 | typ)); err != nil {
				return err
			}
			if err := w.out.writeVarInt(uint32(l - 0x0f)); err != nil {
				return err
			}
		}
	} else {
		if len(entry.Values) != 1 {
			return fmt.Errorf("single-valued property %s has %d values", entry.ID, len(entry.Values))
		}
		if err := w.out.writeByte(byte(typ)); err != nil {
			return err
		}
	}

	if err := w.out.writeVarInt(uint32(entry.ModCount)); err != nil {
		return err
	}

	for i := range entry.Values {
		if err := w.writeValue(ctx, entry, i); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeValue(ctx context.Context, entry *PropertyEntry, i int) error {
	val := entry.Values[i]
	switch entry.Type {
	case proto.TypeBinary:
		return w.writeBinary(ctx, entry, i)
	case proto.TypeDouble:
		return w.out.writeDouble(val.Double)
	case proto.TypeDecimal:
		if val.Decimal == nil {
			return w.out.writeBool(false)
		}
		if err := w.out.writeBool(true); err != nil {
			return err
		}
		return w.out.writeString(proto.DecimalString(val.Decimal))
	case proto.TypeLong:
		return w.out.writeLong(uint64(val.Long))
	case proto.TypeBoolean:
		return w.out.writeBool(val.Bool)
	case proto.TypeName:
		return w.writeName(val.Name)
	case proto.TypeReference, proto.TypeWeakReference:
		return w.writeNodeID(val.NodeID, !val.NodeID.IsZero())
	default:
		// STRING, DATE, PATH, URI
		return w.out.writeString(val.Str)
	}
}

// writeBinary applies the binary placement policy: data store first when
// configured, then the inline-vs-blob-store split on MinBlobSize.
func (w *Writer) writeBinary(ctx context.Context, entry *PropertyEntry, i int) error {
	val := entry.Values[i]

	// values already backed by external storage re-emit their reference
	if val.BlobID != "" {
		if val.InDataStore {
			if err := w.out.writeInt(BinaryInDataStore); err != nil {
				return err
			}
			return w.out.writeString(val.BlobID)
		}
		if err := w.out.writeInt(BinaryInBlobStore); err != nil {
			return err
		}
		entry.setBlobID(i, val.BlobID)
		return w.out.writeString(val.BlobID)
	}

	size := int64(len(val.Bytes))
	if ds := w.binding.DataStore; ds != nil {
		if size < int64(ds.MinRecordLength())-1 {
			return w.writeSmallBinary(entry, i)
		}
		if err := w.out.writeInt(BinaryInDataStore); err != nil {
			return err
		}
		id, err := ds.AddRecord(ctx, bytes.NewReader(val.Bytes))
		if err != nil {
			return &apierrors.BlobError{Err: err}
		}
		entry.Values[i] = proto.DataStoreValue(id)
		metrics.BinaryPlacement.WithLabelValues("datastore").Inc()
		return w.out.writeString(id)
	}

	if size > w.binding.MinBlobSize {
		if err := w.out.writeInt(BinaryInBlobStore); err != nil {
			return err
		}
		blobID := entry.blobID(i)
		if blobID == "" {
			store := w.binding.BlobStore
			blobID = store.CreateID(entry.ID, i)
			if err := store.Put(ctx, blobID, bytes.NewReader(val.Bytes), size); err != nil {
				log.Errorf("storing blob id=%s idx=%d size=%d: %s", entry.ID, i, size, err)
				if _, rerr := store.Remove(ctx, blobID); rerr != nil {
					log.Warnf("discarding uncommitted blob %s: %s", blobID, rerr)
				}
				return &apierrors.BlobError{BlobID: blobID, Err: err}
			}
			entry.setBlobID(i, blobID)
			entry.Values[i] = proto.BlobValue(blobID)
		}
		metrics.BinaryPlacement.WithLabelValues("blobstore").Inc()
		return w.out.writeString(blobID)
	}

	return w.writeSmallBinary(entry, i)
}

// writeSmallBinary inlines a binary value: a 4-byte length prefix and the
// raw bytes. On a write failure the value slot is replaced by the empty
// binary so that one broken value does not leave the entry unusable.
func (w *Writer) writeSmallBinary(entry *PropertyEntry, i int) error {
	data := entry.Values[i].Bytes
	if err := w.out.writeInt(int32(len(data))); err != nil {
		return err
	}
	if err := w.out.write(data); err != nil {
		log.Warnf("writing inline binary id=%s idx=%d: %s, substituting empty value", entry.ID, i, err)
		entry.Values[i] = proto.BinaryValue(nil)
		return err
	}
	metrics.BinaryPlacement.WithLabelValues("inline").Inc()
	return nil
}

// writeNodeID emits a presence byte followed, when present, by the two
// 64-bit halves of the id.
func (w *Writer) writeNodeID(id proto.NodeID, present bool) error {
	if err := w.out.writeBool(present); err != nil {
		return err
	}
	if !present {
		return nil
	}
	if err := w.out.writeLong(id.High); err != nil {
		return err
	}
	return w.out.writeLong(id.Low)
}

// writeName emits either the single-byte well-known form (top bit clear,
// table index in the low seven bits) or the interned form: one byte
// packing the namespace slot (three bits) and the decremented local
// length (four bits, 0x0f marking overflow), followed by the URI string
// on first appearance of a custom namespace and the local name bytes.
func (w *Writer) writeName(name proto.Name) error {
	if index := nameToIndex(name); index != -1 {
		return w.out.writeByte(byte(index))
	}

	uri := name.Namespace
	ns := 0
	for ns < len(w.namespaces) && w.nsUsed[ns] && w.namespaces[ns] != uri {
		ns++
	}

	local := []byte(name.Local)
	l := len(local) - 1
	if l > 0x0f {
		l = 0x0f
	}
	if err := w.out.writeByte(byte(0x80 | ns<<4 | l)); err != nil {
		return err
	}
	if ns == len(w.namespaces) || !w.nsUsed[ns] {
		if err := w.out.writeString(uri); err != nil {
			return err
		}
		if ns < len(w.namespaces) {
			w.namespaces[ns] = uri
			w.nsUsed[ns] = true
		}
	}
	if l != 0x0f {
		return w.out.write(local)
	}
	return w.out.writeBytes(local, 0x0f+1)
}
