package persistence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentlake/bundledb/bundle"
	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/proto"
	"github.com/contentlake/bundledb/state"
	"github.com/contentlake/bundledb/util"
)

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (s *memBlobStore) CreateID(id proto.PropertyID, index int) string {
	return fmt.Sprintf("%s/%s.%d", id.Parent, id.Name.Local, index)
}

func (s *memBlobStore) Put(ctx context.Context, blobID string, r io.Reader, size int64) error {
	data, err := ioutil.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.blobs[blobID] = data
	s.mu.Unlock()
	return nil
}

func (s *memBlobStore) Get(ctx context.Context, blobID string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[blobID]
	if !ok {
		return nil, apierrors.ErrNoSuchBlob
	}
	return ioutil.NopCloser(bytes.NewReader(data)), nil
}

func (s *memBlobStore) Remove(ctx context.Context, blobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[blobID]
	delete(s.blobs, blobID)
	return ok, nil
}

func newTestManager(t *testing.T) (*Manager, func()) {
	t.Helper()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	store, err := NewStore(context.TODO(), &StoreConfig{Path: path})
	require.NoError(t, err)
	binding := bundle.NewBinding(&memBlobStore{blobs: make(map[string][]byte)})
	return NewManager(store, binding), func() {
		store.Close()
		os.RemoveAll(path)
	}
}

func testBundle(id proto.NodeID, parent proto.NodeID) *bundle.NodeBundle {
	b := &bundle.NodeBundle{
		ID:          id,
		PrimaryType: proto.MustName(proto.NSNTURI, "unstructured"),
		ParentID:    parent,
		ModCount:    1,
	}
	e := bundle.NewPropertyEntry(id, proto.MustName(proto.NSJCRURI, "title"), proto.TypeString, false)
	e.Values = []proto.Value{proto.StringValue("hello")}
	b.Properties = append(b.Properties, e)
	return b
}

func TestBundleStoreLoadDestroy(t *testing.T) {
	ctx := context.TODO()
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	id := proto.NewNodeID()
	b := testBundle(id, proto.NodeID{})

	_, err := mgr.LoadBundle(ctx, id)
	require.ErrorIs(t, err, apierrors.ErrBundleDoesNotExist)

	require.NoError(t, mgr.StoreBundle(ctx, b))

	ok, err := mgr.ExistsBundle(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := mgr.LoadBundle(ctx, id)
	require.NoError(t, err)
	require.True(t, b.Equal(got))

	require.NoError(t, mgr.DestroyBundle(ctx, id))
	ok, err = mgr.ExistsBundle(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReferencesRoundTrip(t *testing.T) {
	ctx := context.TODO()
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	target := proto.NewNodeID()

	// a missing block reads back empty
	refs, err := mgr.LoadReferences(ctx, target)
	require.NoError(t, err)
	require.Empty(t, refs.References)

	refs = &state.NodeReferences{
		Target: target,
		References: []proto.PropertyID{
			{Parent: proto.NewNodeID(), Name: proto.MustName(proto.NSJCRURI, "reference")},
			{Parent: proto.NewNodeID(), Name: proto.MustName("http://example.com/app", "link")},
		},
	}
	require.NoError(t, mgr.StoreReferences(ctx, refs))

	got, err := mgr.LoadReferences(ctx, target)
	require.NoError(t, err)
	require.Equal(t, refs, got)
}

func TestReferenceBlockCodec(t *testing.T) {
	target := proto.NewNodeID()
	refs := &state.NodeReferences{
		Target: target,
		References: []proto.PropertyID{
			{Parent: proto.NewNodeID(), Name: proto.MustName(proto.NSDefaultURI, "a")},
		},
	}
	got, err := decodeReferences(target, encodeReferences(refs))
	require.NoError(t, err)
	require.Equal(t, refs, got)

	empty := &state.NodeReferences{Target: target}
	got, err = decodeReferences(target, encodeReferences(empty))
	require.NoError(t, err)
	require.Equal(t, empty, got)

	_, err = decodeReferences(target, []byte{0x02, 0x01})
	require.Error(t, err)
}

func TestCheckConsistency(t *testing.T) {
	ctx := context.TODO()
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	rootID := proto.NewNodeID()
	childID := proto.NewNodeID()
	root := testBundle(rootID, proto.NodeID{})
	root.ChildEntries = append(root.ChildEntries, bundle.ChildEntry{
		ID:   childID,
		Name: proto.MustName(proto.NSDefaultURI, "child"),
	})
	require.NoError(t, mgr.StoreBundle(ctx, root))
	require.NoError(t, mgr.StoreBundle(ctx, testBundle(childID, rootID)))

	report, err := mgr.CheckConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Checked)
	require.Zero(t, report.Corrupt)
	require.Zero(t, report.MissingParents)
	require.Zero(t, report.MissingChildren)

	// a dangling child entry is reported
	require.NoError(t, mgr.DestroyBundle(ctx, childID))
	report, err = mgr.CheckConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Checked)
	require.Equal(t, 1, report.MissingChildren)
}
