package namespace

import (
	"testing"

	"github.com/stretchr/testify/require"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/proto"
)

func TestBuiltinNamespaces(t *testing.T) {
	r := NewRegistry()

	uri, ok := r.GetURI("jcr")
	require.True(t, ok)
	require.Equal(t, proto.NSJCRURI, uri)

	prefix, ok := r.GetPrefix(proto.NSDefaultURI)
	require.True(t, ok)
	require.Equal(t, "", prefix)

	_, ok = r.GetURI("nosuch")
	require.False(t, ok)
}

func TestRegisterNamespace(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ex", "http://example.com/ns"))

	uri, ok := r.GetURI("ex")
	require.True(t, ok)
	require.Equal(t, "http://example.com/ns", uri)
	prefix, ok := r.GetPrefix("http://example.com/ns")
	require.True(t, ok)
	require.Equal(t, "ex", prefix)

	// built-in prefixes and already mapped prefixes or URIs are taken
	require.ErrorIs(t, r.Register("jcr", "http://example.com/other"), apierrors.ErrDuplicateName)
	require.ErrorIs(t, r.Register("ex", "http://example.com/other"), apierrors.ErrDuplicateName)
	require.ErrorIs(t, r.Register("ex2", "http://example.com/ns"), apierrors.ErrDuplicateName)

	require.Contains(t, r.URIs(), "http://example.com/ns")
}
