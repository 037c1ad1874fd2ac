package persistence

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/contentlake/bundledb/bundle"
	"github.com/contentlake/bundledb/common/kvstore"
	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/metrics"
	"github.com/contentlake/bundledb/proto"
	"github.com/contentlake/bundledb/state"
	"github.com/contentlake/bundledb/util"
)

const checkConcurrency = 4

// Manager persists node bundles: every node is one bundle record in the
// bundle column family, keyed by its 16-byte id, encoded by the bundle
// codec. Reference blocks live in their own column family under the same
// key. Concurrent loads of one bundle are collapsed into a single store
// read.
type Manager struct {
	store   *Store
	binding *bundle.Binding
	group   singleflight.Group
}

func NewManager(store *Store, binding *bundle.Binding) *Manager {
	return &Manager{store: store, binding: binding}
}

// LoadBundle reads and decodes the bundle of a node. Loading an unknown
// id fails with errors.ErrBundleDoesNotExist.
func (m *Manager) LoadBundle(ctx context.Context, id proto.NodeID) (*bundle.NodeBundle, error) {
	v, err, _ := m.group.Do(id.String(), func() (interface{}, error) {
		data, err := m.store.KVStore().GetRaw(ctx, bundleCF, id.Bytes(), nil)
		if err != nil {
			if err == kvstore.ErrNotFound {
				metrics.BundleLoads.WithLabelValues("missing").Inc()
				return nil, apierrors.ErrBundleDoesNotExist
			}
			metrics.BundleLoads.WithLabelValues("error").Inc()
			return nil, err
		}
		reader, err := bundle.NewReader(m.binding, bytes.NewReader(data))
		if err != nil {
			metrics.BundleLoads.WithLabelValues("error").Inc()
			return nil, err
		}
		b, err := reader.ReadBundle(id)
		if err != nil {
			metrics.BundleLoads.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.BundleLoads.WithLabelValues("ok").Inc()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bundle.NodeBundle), nil
}

// StoreBundle encodes and writes the bundle of a node.
func (m *Manager) StoreBundle(ctx context.Context, b *bundle.NodeBundle) error {
	span := trace.SpanFromContextSafe(ctx)
	buf := util.GetBufferWriter(512)
	defer util.PutBufferWriter(buf)

	writer, err := bundle.NewWriter(m.binding, buf)
	if err != nil {
		return err
	}
	if err := writer.WriteBundle(ctx, b); err != nil {
		span.Errorf("encoding bundle %s: %s", b.ID, errors.Detail(err))
		return err
	}
	return m.store.KVStore().SetRaw(ctx, bundleCF, b.ID.Bytes(), buf.Bytes(), nil)
}

// ExistsBundle reports whether a bundle record exists for the id.
func (m *Manager) ExistsBundle(ctx context.Context, id proto.NodeID) (bool, error) {
	_, err := m.store.KVStore().GetRaw(ctx, bundleCF, id.Bytes(), nil)
	if err == kvstore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DestroyBundle removes the bundle record and its reference block in one
// batch.
func (m *Manager) DestroyBundle(ctx context.Context, id proto.NodeID) error {
	batch := m.store.KVStore().NewWriteBatch()
	defer batch.Close()
	batch.Delete(bundleCF, id.Bytes())
	batch.Delete(refsCF, id.Bytes())
	return m.store.KVStore().Write(ctx, batch, nil)
}

// StoreReferences writes the reference block of a node.
func (m *Manager) StoreReferences(ctx context.Context, refs *state.NodeReferences) error {
	return m.store.KVStore().SetRaw(ctx, refsCF, refs.Target.Bytes(), encodeReferences(refs), nil)
}

// LoadReferences reads the reference block of a node; a missing block is
// an empty one.
func (m *Manager) LoadReferences(ctx context.Context, id proto.NodeID) (*state.NodeReferences, error) {
	data, err := m.store.KVStore().GetRaw(ctx, refsCF, id.Bytes(), nil)
	if err == kvstore.ErrNotFound {
		return &state.NodeReferences{Target: id}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeReferences(id, data)
}

// CheckReport summarizes a consistency sweep.
type CheckReport struct {
	Checked         int
	MissingParents  int
	MissingChildren int
	Corrupt         int
}

// CheckConsistency decodes every stored bundle and verifies its linkage:
// a non-root bundle's parent must exist, and every child entry must
// resolve to a stored bundle.
func (m *Manager) CheckConsistency(ctx context.Context) (*CheckReport, error) {
	span, ctx := trace.StartSpanFromContext(ctx, "consistency check")

	lr := m.store.KVStore().List(ctx, bundleCF, nil, nil, nil)
	defer lr.Close()

	var (
		eg, egCtx = errgroup.WithContext(ctx)
		work      = make(chan *bundle.NodeBundle, checkConcurrency)
		results   = make(chan CheckReport, checkConcurrency)
	)
	for i := 0; i < checkConcurrency; i++ {
		eg.Go(func() error {
			var r CheckReport
			for b := range work {
				r.Checked++
				m.checkBundle(egCtx, b, &r)
			}
			results <- r
			return nil
		})
	}

	var corrupt int
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			close(work)
			return nil, err
		}
		if key == nil {
			break
		}
		id, err := proto.NodeIDFromBytes(key)
		if err != nil {
			corrupt++
			continue
		}
		reader, err := bundle.NewReader(m.binding, bytes.NewReader(value))
		if err != nil {
			corrupt++
			continue
		}
		b, err := reader.ReadBundle(id)
		if err != nil {
			span.Warnf("bundle %s does not decode: %s", id, err)
			corrupt++
			continue
		}
		select {
		case work <- b:
		case <-egCtx.Done():
			close(work)
			return nil, egCtx.Err()
		}
	}
	close(work)
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	close(results)

	report := &CheckReport{Corrupt: corrupt}
	for r := range results {
		report.Checked += r.Checked
		report.MissingParents += r.MissingParents
		report.MissingChildren += r.MissingChildren
	}
	span.Infof("checked %d bundles: %d corrupt, %d missing parents, %d missing children",
		report.Checked, report.Corrupt, report.MissingParents, report.MissingChildren)
	return report, nil
}

func (m *Manager) checkBundle(ctx context.Context, b *bundle.NodeBundle, r *CheckReport) {
	if !b.ParentID.IsZero() {
		if ok, err := m.ExistsBundle(ctx, b.ParentID); err == nil && !ok {
			r.MissingParents++
		}
	}
	for _, child := range b.ChildEntries {
		if ok, err := m.ExistsBundle(ctx, child.ID); err == nil && !ok {
			r.MissingChildren++
		}
	}
}

// reference block layout: uvarint count, then per reference the 16-byte
// parent id and the length-prefixed expanded property name
func encodeReferences(refs *state.NodeReferences) []byte {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(refs.References)))
	buf.Write(tmp[:n])
	for _, ref := range refs.References {
		buf.Write(ref.Parent.Bytes())
		name := ref.Name.String()
		n = binary.PutUvarint(tmp[:], uint64(len(name)))
		buf.Write(tmp[:n])
		buf.WriteString(name)
	}
	return buf.Bytes()
}

func decodeReferences(id proto.NodeID, data []byte) (*state.NodeReferences, error) {
	r := bytes.NewReader(data)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("reference block of %s: %v", id, err)
	}
	refs := &state.NodeReferences{Target: id}
	var idBytes [16]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return nil, fmt.Errorf("reference block of %s: %v", id, err)
		}
		parent, err := proto.NodeIDFromBytes(idBytes[:])
		if err != nil {
			return nil, err
		}
		nameLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("reference block of %s: %v", id, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, fmt.Errorf("reference block of %s: %v", id, err)
		}
		name, err := proto.ParseName(string(nameBytes))
		if err != nil {
			return nil, err
		}
		refs.References = append(refs.References, proto.PropertyID{Parent: parent, Name: name})
	}
	return refs, nil
}
