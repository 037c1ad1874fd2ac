package blob

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/proto"
	"github.com/contentlake/bundledb/util"
)

func newTestBlobStore(t *testing.T) (*FsBlobStore, func()) {
	t.Helper()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	store, err := NewFsBlobStore(&FsConfig{Path: path})
	require.NoError(t, err)
	return store, func() {
		store.Close()
		os.RemoveAll(path)
	}
}

func TestFsBlobStorePutGetRemove(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestBlobStore(t)
	defer cleanup()

	propID := proto.PropertyID{
		Parent: proto.NewNodeID(),
		Name:   proto.MustName(proto.NSJCRURI, "data"),
	}
	blobID := store.CreateID(propID, 0)
	require.NotEmpty(t, blobID)

	payload := bytes.Repeat([]byte{0x5a}, 4096)
	require.NoError(t, store.Put(ctx, blobID, bytes.NewReader(payload), int64(len(payload))))

	rc, err := store.Get(ctx, blobID)
	require.NoError(t, err)
	got, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	require.Equal(t, payload, got)

	// zero-copy access resolves to a real file
	path, err := store.GetResource(blobID)
	require.NoError(t, err)
	onDisk, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)

	ok, err := store.Remove(ctx, blobID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = store.Get(ctx, blobID)
	require.ErrorIs(t, err, apierrors.ErrNoSuchBlob)

	ok, err = store.Remove(ctx, blobID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFsBlobStoreShortWrite(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestBlobStore(t)
	defer cleanup()

	blobID := store.CreateID(proto.PropertyID{
		Parent: proto.NewNodeID(),
		Name:   proto.MustName(proto.NSJCRURI, "data"),
	}, 1)
	err := store.Put(ctx, blobID, bytes.NewReader([]byte("abc")), 10)
	require.Error(t, err)
	_, err = store.Get(ctx, blobID)
	require.ErrorIs(t, err, apierrors.ErrNoSuchBlob)
}

func TestFsBlobStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestBlobStore(t)
	defer cleanup()

	_, err := store.Get(ctx, "../../etc/passwd")
	require.Error(t, err)
	require.NotErrorIs(t, err, apierrors.ErrNoSuchBlob)
}

func TestFsDataStore(t *testing.T) {
	ctx := context.Background()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	ds, err := NewFsDataStore(&FsDataStoreConfig{Path: path, MinRecordLength: 64})
	require.NoError(t, err)
	require.Equal(t, 64, ds.MinRecordLength())

	payload := bytes.Repeat([]byte{7}, 200)
	id1, err := ds.AddRecord(ctx, bytes.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, id1, 64)

	// identical content yields the identical identifier
	id2, err := ds.AddRecord(ctx, bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	rc, size, err := ds.GetRecord(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), size)
	got, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	require.Equal(t, payload, got)

	records, err := ds.Records()
	require.NoError(t, err)
	require.Equal(t, []string{id1}, records)

	_, _, err = ds.GetRecord(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	require.ErrorIs(t, err, apierrors.ErrNoSuchBlob)

	_, _, err = ds.GetRecord(ctx, "not-a-record-id")
	require.Error(t, err)
}
