package hierarchy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/proto"
	"github.com/contentlake/bundledb/state"
)

var (
	ntUnstructured = proto.MustName(proto.NSNTURI, "unstructured")
	repRoot        = proto.MustName(proto.NSInternalURI, "root")
)

// staticISM is a programmable in-memory item state manager. Generated
// node ids are sequential so tests stay deterministic.
type staticISM struct {
	mu       sync.Mutex
	rootID   proto.NodeID
	states   map[proto.ItemID]state.ItemState
	root     *state.NodeState
	listener state.NodeStateListener
	lsb      uint64
}

func newStaticISM() *staticISM {
	ism := &staticISM{states: make(map[proto.ItemID]state.ItemState)}
	ism.rootID = ism.nextID()
	return ism
}

func (ism *staticISM) nextID() proto.NodeID {
	ism.lsb++
	return proto.NodeID{Low: ism.lsb}
}

func (ism *staticISM) setContainer(listener state.NodeStateListener) {
	ism.listener = listener
}

func (ism *staticISM) getRoot() *state.NodeState {
	if ism.root == nil {
		ism.root = state.NewNodeState(ism.rootID, repRoot, proto.NodeID{}, proto.StatusExisting)
		if ism.listener != nil {
			ism.root.SetContainer(ism.listener)
		}
	}
	return ism.root
}

func (ism *staticISM) addNode(parent *state.NodeState, name string) *state.NodeState {
	ism.mu.Lock()
	id := ism.nextID()
	child := state.NewNodeState(id, ntUnstructured, parent.NodeID(), proto.StatusExisting)
	ism.states[id] = child
	ism.mu.Unlock()
	if ism.listener != nil {
		child.SetContainer(ism.listener)
	}
	parent.AddChildNodeEntry(proto.MustName(proto.NSDefaultURI, name), id)
	return child
}

func (ism *staticISM) addProperty(parent *state.NodeState, name string) *state.PropertyState {
	propName := proto.MustName(proto.NSDefaultURI, name)
	id := proto.PropertyID{Parent: parent.NodeID(), Name: propName}
	child := state.NewPropertyState(id, proto.StatusExisting)
	ism.mu.Lock()
	ism.states[id] = child
	ism.mu.Unlock()
	if ism.listener != nil {
		child.SetContainer(ism.listener)
	}
	parent.AddPropertyName(propName)
	return child
}

func (ism *staticISM) cloneNode(src *state.NodeState, parent *state.NodeState, name string) {
	src.AddShare(parent.NodeID())
	parent.AddChildNodeEntry(proto.MustName(proto.NSDefaultURI, name), src.NodeID())
}

func (ism *staticISM) moveNode(t *testing.T, child *state.NodeState, newParent *state.NodeState, name string) {
	oldParent := ism.nodeState(t, child.ParentID())
	require.True(t, oldParent.RemoveChildNodeEntry(child.NodeID()))
	child.SetParentID(newParent.NodeID())
	newParent.AddChildNodeEntry(proto.MustName(proto.NSDefaultURI, name), child.NodeID())
}

func (ism *staticISM) orderBefore(t *testing.T, src, dest *state.NodeState) {
	parent := ism.nodeState(t, src.ParentID())
	entries := parent.ChildNodeEntries()

	srcIndex, destIndex := -1, -1
	for i, e := range entries {
		if e.ID == src.NodeID() {
			srcIndex = i
		} else if dest != nil && e.ID == dest.NodeID() {
			destIndex = i
		}
	}
	require.GreaterOrEqual(t, srcIndex, 0)

	moved := entries[srcIndex]
	entries = append(entries[:srcIndex], entries[srcIndex+1:]...)
	if destIndex == -1 {
		entries = append(entries, moved)
	} else {
		if srcIndex < destIndex {
			destIndex--
		}
		entries = append(entries[:destIndex], append([]state.ChildNodeEntry{moved}, entries[destIndex:]...)...)
	}
	parent.SetChildNodeEntries(entries)
}

func (ism *staticISM) removeNode(t *testing.T, child *state.NodeState) {
	parent := ism.nodeState(t, child.ParentID())
	if child.IsShareable() {
		if child.RemoveShare(parent.NodeID()) == 0 {
			child.SetParentID(proto.NodeID{})
		}
	}
	require.True(t, parent.RemoveChildNodeEntry(child.NodeID()))
}

func (ism *staticISM) renameNode(t *testing.T, child *state.NodeState, newName string) {
	parent := ism.nodeState(t, child.ParentID())
	entry, index, ok := parent.GetChildNodeEntry(child.NodeID())
	require.True(t, ok)
	require.True(t, parent.RenameChildNodeEntry(entry.Name, index, proto.MustName(proto.NSDefaultURI, newName)))
}

func (ism *staticISM) nodeState(t *testing.T, id proto.NodeID) *state.NodeState {
	item, err := ism.GetItemState(id)
	require.NoError(t, err)
	return item.(*state.NodeState)
}

//----------------------------------------------------- ItemStateManager

func (ism *staticISM) GetItemState(id proto.ItemID) (state.ItemState, error) {
	if id == proto.ItemID(ism.rootID) {
		return ism.getRoot(), nil
	}
	ism.mu.Lock()
	defer ism.mu.Unlock()
	item, ok := ism.states[id]
	if !ok {
		return nil, apierrors.ErrNoSuchItemState
	}
	return item, nil
}

func (ism *staticISM) HasItemState(id proto.ItemID) bool {
	if id == proto.ItemID(ism.rootID) {
		return true
	}
	ism.mu.Lock()
	defer ism.mu.Unlock()
	_, ok := ism.states[id]
	return ok
}

func (ism *staticISM) GetNodeReferences(id proto.NodeID) (*state.NodeReferences, error) {
	return nil, apierrors.ErrNoSuchItemState
}

func (ism *staticISM) HasNodeReferences(id proto.NodeID) bool {
	return false
}

func toPath(t *testing.T, s string) proto.Path {
	p, err := proto.ParsePath(s)
	require.NoError(t, err)
	return p
}

func newTestManager(ism *staticISM) *Manager {
	m := New(ism.rootID, ism)
	ism.setContainer(m)
	return m
}

//------------------------------------------------------------ basic tests

// Resolving node and property paths only returns valid hits.
func TestResolveNodePropertyPath(t *testing.T) {
	ctx := context.Background()
	ism := newStaticISM()
	m := newTestManager(ism)
	a := ism.addNode(ism.getRoot(), "a")
	b := ism.addNode(a, "b")

	path := toPath(t, "/a/b")

	// /a/b points to a node only
	item, err := m.ResolvePath(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, item)
	require.True(t, item.DenotesNode())

	nodeID, err := m.ResolveNodePath(ctx, path)
	require.NoError(t, err)
	require.Equal(t, b.NodeID(), nodeID)

	propID, err := m.ResolvePropertyPath(ctx, path)
	require.NoError(t, err)
	require.True(t, propID.Parent.IsZero())

	ism.addProperty(a, "b")

	// /a/b now points to both a node and a property
	nodeID, err = m.ResolveNodePath(ctx, path)
	require.NoError(t, err)
	require.Equal(t, b.NodeID(), nodeID)

	propID, err = m.ResolvePropertyPath(ctx, path)
	require.NoError(t, err)
	require.Equal(t, a.NodeID(), propID.Parent)

	ism.removeNode(t, b)

	// /a/b points to the property only
	nodeID, err = m.ResolveNodePath(ctx, path)
	require.NoError(t, err)
	require.True(t, nodeID.IsZero())

	item, err = m.ResolvePath(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, item)
	require.False(t, item.DenotesNode())

	propID, err = m.ResolvePropertyPath(ctx, path)
	require.NoError(t, err)
	require.Equal(t, a.NodeID(), propID.Parent)
}

//------------------------------------------------------------ caching tests

// Clone a node, cache its paths and remove it through one parent: the
// invalidated path disappears, the other keeps resolving to the same id.
func TestCloneAndRemove(t *testing.T) {
	ctx := context.Background()
	ism := newStaticISM()
	m := newTestManager(ism)
	a1 := ism.addNode(ism.getRoot(), "a1")
	a2 := ism.addNode(ism.getRoot(), "a2")
	b1 := ism.addNode(a1, "b1")
	b1.AddShare(b1.ParentID())
	ism.cloneNode(b1, a2, "b2")

	item, err := m.ResolvePath(ctx, toPath(t, "/a1/b1"))
	require.NoError(t, err)
	require.Equal(t, proto.ItemID(b1.NodeID()), item)

	item, err = m.ResolvePath(ctx, toPath(t, "/a2/b2"))
	require.NoError(t, err)
	require.Equal(t, proto.ItemID(b1.NodeID()), item)

	ism.removeNode(t, b1)

	item, err = m.ResolvePath(ctx, toPath(t, "/a1/b1"))
	require.NoError(t, err)
	require.Nil(t, item, "path no longer valid: /a1/b1")

	item, err = m.ResolvePath(ctx, toPath(t, "/a2/b2"))
	require.NoError(t, err)
	require.Equal(t, proto.ItemID(b1.NodeID()), item)
}

// Move a node and verify that the cached path is adapted.
func TestMove(t *testing.T) {
	ism := newStaticISM()
	m := newTestManager(ism)
	a1 := ism.addNode(ism.getRoot(), "a1")
	a2 := ism.addNode(ism.getRoot(), "a2")
	b1 := ism.addNode(a1, "b1")

	path, err := m.GetPath(b1.NodeID())
	require.NoError(t, err)
	require.Equal(t, "/a1/b1", path.String())

	ism.moveNode(t, b1, a2, "b2")

	path, err = m.GetPath(b1.NodeID())
	require.NoError(t, err)
	require.Equal(t, "/a2/b2", path.String())
}

// Reorder child nodes and verify that cached paths stay adequate.
func TestOrderBefore(t *testing.T) {
	ism := newStaticISM()
	m := newTestManager(ism)
	a := ism.addNode(ism.getRoot(), "a")
	b1 := ism.addNode(a, "b")
	b2 := ism.addNode(a, "b")
	b3 := ism.addNode(a, "b")

	path, err := m.GetPath(b1.NodeID())
	require.NoError(t, err)
	require.Equal(t, "/a/b", path.String())

	ism.orderBefore(t, b2, b1)
	ism.orderBefore(t, b1, b3)

	path, err = m.GetPath(b1.NodeID())
	require.NoError(t, err)
	require.Equal(t, "/a/b[2]", path.String())
	require.Equal(t, "/a/b", mustGetPath(t, m, b2).String())
	require.Equal(t, "/a/b[3]", mustGetPath(t, m, b3).String())
}

// Remove a node and verify that cached descendant paths are gone.
func TestRemove(t *testing.T) {
	ism := newStaticISM()
	m := newTestManager(ism)
	a := ism.addNode(ism.getRoot(), "a")
	b := ism.addNode(a, "b")
	c := ism.addNode(b, "c")

	_, err := m.GetPath(c.NodeID())
	require.NoError(t, err)
	require.True(t, m.IsCached(c.NodeID()))

	ism.removeNode(t, b)
	require.False(t, m.IsCached(c.NodeID()))
}

// Rename a node with a same-name sibling. SNS indexes are always derived
// from the live entry list, so the surviving sibling collapses to index
// one.
func TestRename(t *testing.T) {
	ctx := context.Background()
	ism := newStaticISM()
	m := newTestManager(ism)
	a1 := ism.addNode(ism.getRoot(), "a1")
	b1 := ism.addNode(a1, "b")
	b2 := ism.addNode(a1, "b")

	require.Equal(t, "/a1/b", mustGetPath(t, m, b1).String())
	require.Equal(t, "/a1/b[2]", mustGetPath(t, m, b2).String())

	ism.renameNode(t, b1, "b1")

	require.Equal(t, "/a1/b1", mustGetPath(t, m, b1).String())
	require.Equal(t, "/a1/b", mustGetPath(t, m, b2).String())

	nodeID, err := m.ResolveNodePath(ctx, toPath(t, "/a1/b1"))
	require.NoError(t, err)
	require.Equal(t, b1.NodeID(), nodeID)

	nodeID, err = m.ResolveNodePath(ctx, toPath(t, "/a1/b"))
	require.NoError(t, err)
	require.Equal(t, b2.NodeID(), nodeID)
}

// After any sequence of mutations, every cached id still resolves to the
// same path a fresh walk produces.
func TestCacheCoherence(t *testing.T) {
	ism := newStaticISM()
	m := newTestManager(ism)
	a := ism.addNode(ism.getRoot(), "a")
	b1 := ism.addNode(a, "b")
	b2 := ism.addNode(a, "b")
	c := ism.addNode(b1, "c")
	d := ism.addNode(c, "d")

	all := []*state.NodeState{a, b1, b2, c, d}
	for _, n := range all {
		_, err := m.GetPath(n.NodeID())
		require.NoError(t, err)
	}

	ism.orderBefore(t, b2, b1)
	ism.renameNode(t, b2, "bb")
	ism.moveNode(t, d, a, "d")

	for _, n := range all {
		got, err := m.GetPath(n.NodeID())
		require.NoError(t, err)
		require.Equal(t, freshPath(t, ism, n.NodeID()).String(), got.String(),
			"cached path of %s diverged", n.NodeID())
	}
}

// freshPath recomputes a node's path purely from the item states.
func freshPath(t *testing.T, ism *staticISM, id proto.NodeID) proto.Path {
	var elements []proto.PathElement
	for id != ism.rootID {
		st := ism.nodeState(t, id)
		parent := ism.nodeState(t, st.ParentID())
		entry, index, ok := parent.GetChildNodeEntry(id)
		require.True(t, ok)
		elements = append(elements, proto.NamedElement(entry.Name, index))
		id = parent.NodeID()
	}
	path := proto.RootPath()
	for i := len(elements) - 1; i >= 0; i-- {
		path = path.Child(elements[i].Name, elements[i].Index)
	}
	return path
}

func mustGetPath(t *testing.T, m *Manager, n *state.NodeState) proto.Path {
	t.Helper()
	path, err := m.GetPath(n.NodeID())
	require.NoError(t, err)
	return path
}

//------------------------------------------------------- concurrency tests

// freshISM hands out a fresh childless state for every id, like a state
// manager whose backing store is empty.
type freshISM struct{}

func (freshISM) GetItemState(id proto.ItemID) (state.ItemState, error) {
	nodeID, ok := id.(proto.NodeID)
	if !ok {
		return nil, apierrors.ErrNoSuchItemState
	}
	return state.NewNodeState(nodeID, ntUnstructured, proto.NodeID{}, proto.StatusNew), nil
}

func (freshISM) HasItemState(id proto.ItemID) bool { return false }

func (freshISM) GetNodeReferences(id proto.NodeID) (*state.NodeReferences, error) {
	return nil, apierrors.ErrNoSuchItemState
}

func (freshISM) HasNodeReferences(id proto.NodeID) bool { return false }

func TestResolveNodePathConcurrent(t *testing.T) {
	ctx := context.Background()
	m := New(proto.NewNodeID(), freshISM{})
	path := toPath(t, "/a1")

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	stop := make(chan struct{})
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := m.ResolveNodePath(ctx, path); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	time.Sleep(time.Second)
	close(stop)
	wg.Wait()
	select {
	case err := <-errs:
		require.NoError(t, err)
	default:
	}
}
