package bundle

import (
	"io"

	"github.com/cubefs/cubefs/blobstore/util/log"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/metrics"
	"github.com/contentlake/bundledb/proto"
)

// largest binary value the reader will materialize inline; anything
// bigger is treated as a corrupt length and recovered as empty
const maxInlineBinary = 0x10000000

// Reader deserializes node bundles from one input stream. It mirrors the
// Writer: the version byte read up front selects the decoder, and the
// seven-slot namespace table is rebuilt in first-appearance order.
type Reader struct {
	binding    *Binding
	in         dataInput
	version    byte
	namespaces [7]string
	nsUsed     [7]bool
}

// NewReader creates a bundle deserializer, consuming and validating the
// format version byte.
func NewReader(binding *Binding, r io.Reader) (*Reader, error) {
	br := &Reader{binding: binding, in: dataInput{r: r}}
	br.nsUsed[0] = true // slot 0: default namespace
	version, err := br.in.readByte()
	if err != nil {
		return nil, err
	}
	if version != Version1 {
		return nil, apierrors.NewCorruptBundle(br.in.offset, "unknown bundle format version %d", version)
	}
	br.version = version
	return br, nil
}

// ReadBundle deserializes the bundle of the node identified by id.
func (r *Reader) ReadBundle(id proto.NodeID) (*NodeBundle, error) {
	start := r.in.offset
	var b *NodeBundle
	var err error
	switch r.version {
	case Version1:
		b, err = r.readBundleV1(id)
	default:
		return nil, apierrors.NewCorruptBundle(r.in.offset, "unknown bundle format version %d", r.version)
	}
	if err != nil {
		return nil, err
	}
	b.SetSize(r.in.offset - start)
	metrics.BundleReadSize.Observe(float64(b.Size()))
	return b, nil
}

func (r *Reader) readBundleV1(id proto.NodeID) (*NodeBundle, error) {
	b := &NodeBundle{ID: id}

	primaryType, err := r.readName(false)
	if err != nil {
		return nil, err
	}
	b.PrimaryType = primaryType

	parentID, _, err := r.readNodeID()
	if err != nil {
		return nil, err
	}
	b.ParentID = parentID

	for {
		mixin, err := r.readName(true)
		if err != nil {
			return nil, err
		}
		if mixin.IsZero() {
			break
		}
		b.MixinTypes = append(b.MixinTypes, mixin)
	}

	for {
		name, err := r.readName(true)
		if err != nil {
			return nil, err
		}
		if name.IsZero() {
			break
		}
		entry, err := r.readState(proto.PropertyID{Parent: id, Name: name})
		if err != nil {
			return nil, err
		}
		b.Properties = append(b.Properties, entry)
	}

	referenceable, err := r.in.readBool()
	if err != nil {
		return nil, err
	}
	b.Referenceable = referenceable

	for {
		childID, present, err := r.readNodeID()
		if err != nil {
			return nil, err
		}
		if !present {
			break
		}
		name, err := r.readName(false)
		if err != nil {
			return nil, err
		}
		b.ChildEntries = append(b.ChildEntries, ChildEntry{ID: childID, Name: name})
	}

	modCount, err := r.in.readVarInt()
	if err != nil {
		return nil, err
	}
	b.ModCount = int(modCount)

	for {
		shareID, present, err := r.readNodeID()
		if err != nil {
			return nil, err
		}
		if !present {
			break
		}
		b.SharedSet = append(b.SharedSet, shareID)
	}

	return b, nil
}

// readState inverts Writer.writeState.
func (r *Reader) readState(id proto.PropertyID) (*PropertyEntry, error) {
	header, err := r.in.readByte()
	if err != nil {
		return nil, err
	}
	typ := int(header & 0x0f)
	if !proto.ValidType(typ) {
		return nil, apierrors.NewCorruptBundle(r.in.offset, "unknown property type %d", typ)
	}

	count := 1
	multiValued := header&0xf0 != 0
	if multiValued {
		l := int(header >> 4 & 0x0f)
		if l == 0x0f {
			overflow, err := r.in.readVarInt()
			if err != nil {
				return nil, err
			}
			l = int(overflow) + 0x0f
		}
		count = l - 1
		if count < 0 || count > maxInlineBinary {
			return nil, apierrors.NewCorruptBundle(r.in.offset, "property value count %d out of range", count)
		}
	}

	modCount, err := r.in.readVarInt()
	if err != nil {
		return nil, err
	}

	entry := &PropertyEntry{
		ID:          id,
		Type:        typ,
		MultiValued: multiValued,
		ModCount:    int(modCount),
		Values:      make([]proto.Value, count),
	}
	for i := 0; i < count; i++ {
		val, err := r.readValue(entry, i)
		if err != nil {
			return nil, err
		}
		entry.Values[i] = val
	}
	return entry, nil
}

func (r *Reader) readValue(entry *PropertyEntry, i int) (proto.Value, error) {
	switch entry.Type {
	case proto.TypeBinary:
		return r.readBinary(entry, i)
	case proto.TypeDouble:
		v, err := r.in.readDouble()
		return proto.DoubleValue(v), err
	case proto.TypeDecimal:
		present, err := r.in.readBool()
		if err != nil || !present {
			return proto.DecimalValue(nil), err
		}
		s, err := r.in.readString()
		if err != nil {
			return proto.Value{}, err
		}
		d, err := proto.ParseDecimal(s)
		if err != nil {
			return proto.Value{}, apierrors.NewCorruptBundle(r.in.offset, "invalid decimal %q", s)
		}
		return proto.DecimalValue(d), nil
	case proto.TypeLong:
		v, err := r.in.readLong()
		return proto.LongValue(int64(v)), err
	case proto.TypeBoolean:
		v, err := r.in.readBool()
		return proto.BoolValue(v), err
	case proto.TypeName:
		name, err := r.readName(false)
		return proto.NameValue(name), err
	case proto.TypeReference, proto.TypeWeakReference:
		id, _, err := r.readNodeID()
		v := proto.Value{Type: entry.Type, NodeID: id}
		return v, err
	default:
		// STRING, DATE, PATH, URI
		s, err := r.in.readString()
		return proto.Value{Type: entry.Type, Str: s}, err
	}
}

// readBinary inverts the placement policy. A negative non-sentinel or
// implausibly large length prefix is recovered as the empty binary so a
// single corrupt value does not make the whole bundle unreadable.
func (r *Reader) readBinary(entry *PropertyEntry, i int) (proto.Value, error) {
	n, err := r.in.readInt()
	if err != nil {
		return proto.Value{}, err
	}
	switch {
	case n == BinaryInDataStore:
		id, err := r.in.readString()
		if err != nil {
			return proto.Value{}, err
		}
		return proto.DataStoreValue(id), nil
	case n == BinaryInBlobStore:
		id, err := r.in.readString()
		if err != nil {
			return proto.Value{}, err
		}
		entry.setBlobID(i, id)
		return proto.BlobValue(id), nil
	case n < 0 || n > maxInlineBinary:
		log.Warnf("inline binary id=%s idx=%d has invalid length %d, substituting empty value", entry.ID, i, n)
		return proto.BinaryValue(nil), nil
	case n == 0:
		return proto.BinaryValue([]byte{}), nil
	default:
		data := make([]byte, n)
		if err := r.in.readFully(data); err != nil {
			return proto.Value{}, err
		}
		return proto.BinaryValue(data), nil
	}
}

func (r *Reader) readNodeID() (proto.NodeID, bool, error) {
	present, err := r.in.readBool()
	if err != nil || !present {
		return proto.NodeID{}, false, err
	}
	high, err := r.in.readLong()
	if err != nil {
		return proto.NodeID{}, false, err
	}
	low, err := r.in.readLong()
	if err != nil {
		return proto.NodeID{}, false, err
	}
	return proto.NodeID{High: high, Low: low}, true, nil
}

// readName inverts Writer.writeName. allowNull admits the null-name
// sentinel that terminates lists.
func (r *Reader) readName(allowNull bool) (proto.Name, error) {
	b, err := r.in.readByte()
	if err != nil {
		return proto.Name{}, err
	}
	if b&0x80 == 0 {
		name, ok := indexToName(int(b))
		if !ok {
			return proto.Name{}, apierrors.NewCorruptBundle(r.in.offset, "unassigned well-known name index %d", b)
		}
		if name.IsZero() && !allowNull {
			return proto.Name{}, apierrors.NewCorruptBundle(r.in.offset, "unexpected null name")
		}
		return name, nil
	}

	ns := int(b>>4) & 0x07
	l := int(b & 0x0f)

	var uri string
	switch {
	case ns == len(r.namespaces):
		// overflow slot, the URI is always inline
		uri, err = r.in.readString()
		if err != nil {
			return proto.Name{}, err
		}
	case r.nsUsed[ns]:
		uri = r.namespaces[ns]
	default:
		// first appearance of a custom namespace; slots fill in order
		if !r.nsUsed[ns-1] {
			return proto.Name{}, apierrors.NewCorruptBundle(r.in.offset, "namespace slot %d referenced before slot %d", ns, ns-1)
		}
		uri, err = r.in.readString()
		if err != nil {
			return proto.Name{}, err
		}
		r.namespaces[ns] = uri
		r.nsUsed[ns] = true
	}

	var local []byte
	if l != 0x0f {
		local = make([]byte, l+1)
	} else {
		n, err := r.in.readVarInt()
		if err != nil {
			return proto.Name{}, err
		}
		if n > maxStringLength {
			return proto.Name{}, apierrors.NewCorruptBundle(r.in.offset, "local name length %d out of range", n)
		}
		local = make([]byte, int(n)+0x0f+1)
	}
	if err := r.in.readFully(local); err != nil {
		return proto.Name{}, err
	}
	name, err := proto.NewName(uri, string(local))
	if err != nil {
		return proto.Name{}, apierrors.NewCorruptBundle(r.in.offset, "invalid name %q", string(local))
	}
	return name, nil
}
