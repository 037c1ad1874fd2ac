package bundle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentlake/bundledb/proto"
	"github.com/contentlake/bundledb/state"
)

func TestFromNodeState(t *testing.T) {
	id := proto.NewNodeID()
	parent := proto.NewNodeID()
	n := state.NewNodeState(id, proto.MustName(proto.NSNTURI, "file"), parent, proto.StatusExisting)
	n.SetMixinTypes([]proto.Name{proto.MustName(proto.NSMixURI, "referenceable")})
	n.AddShare(parent)

	childID := proto.NewNodeID()
	n.AddChildNodeEntry(proto.MustName(proto.NSJCRURI, "content"), childID)

	titleName := proto.MustName(proto.NSJCRURI, "title")
	title := state.NewPropertyState(proto.PropertyID{Parent: id, Name: titleName}, proto.StatusExisting)
	title.SetValues(proto.TypeString, false, []proto.Value{proto.StringValue("readme")})

	uuidProp := state.NewPropertyState(proto.PropertyID{Parent: id, Name: nameUUID}, proto.StatusExisting)
	uuidProp.SetValues(proto.TypeString, false, []proto.Value{proto.StringValue(id.String())})

	n.SetModCount(5)
	b := FromNodeState(n, []*state.PropertyState{title, uuidProp})

	require.Equal(t, id, b.ID)
	require.Equal(t, parent, b.ParentID)
	require.Equal(t, proto.MustName(proto.NSNTURI, "file"), b.PrimaryType)
	require.Equal(t, []proto.NodeID{parent}, b.SharedSet)
	require.Len(t, b.ChildEntries, 1)
	require.Equal(t, childID, b.ChildEntries[0].ID)
	require.Equal(t, 5, b.ModCount)

	// the uuid property marks the node referenceable
	require.True(t, b.Referenceable)

	entry := b.PropertyEntryFor(titleName)
	require.NotNil(t, entry)
	require.Equal(t, proto.TypeString, entry.Type)
	require.Nil(t, b.PropertyEntryFor(proto.MustName(proto.NSJCRURI, "none")))

	// a captured bundle survives the codec
	binding := NewBinding(newMemBlobStore())
	data := encodeBundle(t, binding, b)
	got := decodeBundle(t, binding, id, data)

	// the synthetic uuid property is not serialized
	require.Nil(t, got.PropertyEntryFor(nameUUID))
	require.NotNil(t, got.PropertyEntryFor(titleName))
	require.True(t, got.Referenceable)
}
