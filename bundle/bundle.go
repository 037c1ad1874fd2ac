package bundle

import (
	"github.com/contentlake/bundledb/proto"
	"github.com/contentlake/bundledb/state"
)

// NodeBundle is the unit of persistence: one node together with all of
// its inlined properties, mixins, child references and shared-parent set.
type NodeBundle struct {
	ID          proto.NodeID
	PrimaryType proto.Name
	ParentID    proto.NodeID // zero when the node has no parent
	MixinTypes  []proto.Name

	// Properties in stable order. The synthetic jcr:primaryType,
	// jcr:mixinTypes and jcr:uuid properties are never serialized.
	Properties []*PropertyEntry

	Referenceable bool
	ChildEntries  []ChildEntry
	ModCount      int
	SharedSet     []proto.NodeID

	size int64
}

// ChildEntry is one serialized child reference.
type ChildEntry struct {
	ID   proto.NodeID
	Name proto.Name
}

// PropertyEntry is one serialized property. BlobIDs parallels Values for
// BINARY properties; a non-empty slot records where the value was
// offloaded so that re-serialization does not store the blob again.
type PropertyEntry struct {
	ID          proto.PropertyID
	Type        int
	MultiValued bool
	ModCount    int
	Values      []proto.Value
	BlobIDs     []string
}

// NewPropertyEntry creates an entry for the named property of the bundle
// owner.
func NewPropertyEntry(owner proto.NodeID, name proto.Name, typ int, multiValued bool) *PropertyEntry {
	return &PropertyEntry{
		ID:          proto.PropertyID{Parent: owner, Name: name},
		Type:        typ,
		MultiValued: multiValued,
	}
}

func (e *PropertyEntry) blobID(i int) string {
	if i < len(e.BlobIDs) {
		return e.BlobIDs[i]
	}
	return ""
}

func (e *PropertyEntry) setBlobID(i int, id string) {
	for len(e.BlobIDs) < len(e.Values) {
		e.BlobIDs = append(e.BlobIDs, "")
	}
	e.BlobIDs[i] = id
}

// Size is the measured byte length of the bundle as last written or read,
// not counting the stream's leading format version byte; it is recomputed
// on every write and read and not part of the wire format.
func (b *NodeBundle) Size() int64 { return b.size }

func (b *NodeBundle) SetSize(size int64) { b.size = size }

// PropertyEntryFor finds a property entry by name.
func (b *NodeBundle) PropertyEntryFor(name proto.Name) *PropertyEntry {
	for _, e := range b.Properties {
		if e.ID.Name == name {
			return e
		}
	}
	return nil
}

// FromNodeState captures a bundle from a node state and its property
// states.
func FromNodeState(n *state.NodeState, properties []*state.PropertyState) *NodeBundle {
	b := &NodeBundle{
		ID:          n.NodeID(),
		PrimaryType: n.PrimaryType(),
		ParentID:    n.ParentID(),
		MixinTypes:  n.MixinTypes(),
		ModCount:    n.ModCount(),
		SharedSet:   n.SharedSet(),
	}
	for _, e := range n.ChildNodeEntries() {
		b.ChildEntries = append(b.ChildEntries, ChildEntry{ID: e.ID, Name: e.Name})
	}
	for _, p := range properties {
		if p.PropertyID().Name == nameUUID {
			b.Referenceable = true
		}
		entry := NewPropertyEntry(b.ID, p.PropertyID().Name, p.Type(), p.IsMultiValued())
		entry.ModCount = p.ModCount()
		entry.Values = p.Values()
		b.Properties = append(b.Properties, entry)
	}
	return b
}

// Equal compares two bundles field by field, ignoring the measured size.
func (b *NodeBundle) Equal(o *NodeBundle) bool {
	if b.PrimaryType != o.PrimaryType ||
		b.ParentID != o.ParentID ||
		b.Referenceable != o.Referenceable ||
		b.ModCount != o.ModCount ||
		len(b.MixinTypes) != len(o.MixinTypes) ||
		len(b.Properties) != len(o.Properties) ||
		len(b.ChildEntries) != len(o.ChildEntries) ||
		len(b.SharedSet) != len(o.SharedSet) {
		return false
	}
	for i, m := range b.MixinTypes {
		if m != o.MixinTypes[i] {
			return false
		}
	}
	for i, e := range b.ChildEntries {
		if e != o.ChildEntries[i] {
			return false
		}
	}
	for i, id := range b.SharedSet {
		if id != o.SharedSet[i] {
			return false
		}
	}
	for i, p := range b.Properties {
		q := o.Properties[i]
		if p.ID.Name != q.ID.Name || p.Type != q.Type ||
			p.MultiValued != q.MultiValued || p.ModCount != q.ModCount ||
			len(p.Values) != len(q.Values) {
			return false
		}
		for j, v := range p.Values {
			if !v.Equals(q.Values[j]) {
				return false
			}
		}
	}
	return true
}
