package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeIDRoundTrip(t *testing.T) {
	id := NewNodeID()
	require.False(t, id.IsZero())

	parsed, err := ParseNodeID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	fromBytes, err := NodeIDFromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, fromBytes)

	_, err = NodeIDFromBytes([]byte{1, 2, 3})
	require.Error(t, err)

	require.True(t, NodeID{}.IsZero())
	require.True(t, NodeID{}.DenotesNode())
}

func TestNameValidation(t *testing.T) {
	n, err := NewName(NSJCRURI, "content")
	require.NoError(t, err)
	require.Equal(t, "{http://www.jcp.org/jcr/1.0}content", n.String())

	back, err := ParseName(n.String())
	require.NoError(t, err)
	require.Equal(t, n, back)

	bare, err := ParseName("title")
	require.NoError(t, err)
	require.Equal(t, Name{Namespace: NSDefaultURI, Local: "title"}, bare)

	for _, bad := range []string{"", "a/b", "a[1]", "{unterminated"} {
		_, err := ParseName(bad)
		require.Error(t, err, "name %q", bad)
	}
}

func TestItemIDKinds(t *testing.T) {
	node := NewNodeID()
	prop := PropertyID{Parent: node, Name: MustName(NSDefaultURI, "p")}

	var id ItemID = node
	require.True(t, id.DenotesNode())
	id = prop
	require.False(t, id.DenotesNode())
}
