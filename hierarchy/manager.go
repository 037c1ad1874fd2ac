package hierarchy

import (
	"context"
	"errors"
	"sync"

	"github.com/cubefs/cubefs/blobstore/util/log"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/metrics"
	"github.com/contentlake/bundledb/proto"
	"github.com/contentlake/bundledb/state"
)

// resolution kinds
const (
	kindAny = iota
	kindNode
	kindProperty
)

type cacheEntry struct {
	path proto.Path
	id   proto.ItemID
}

// Manager is the caching hierarchy manager: it maps node ids to their
// repository paths and paths to item ids, keeping both maps coherent
// under structural mutations by registering itself as listener on every
// node state it has touched.
//
// All map state is guarded by a single mutex. The mutex is never held
// across a call into the ItemStateManager: a resolution releases it,
// walks, and installs its findings only if no invalidating event arrived
// in between. Listener callbacks therefore only ever see the maps in a
// fully patched state. A node reachable through several parents has one
// id -> path entry: the first path it was cached under, which is not
// necessarily the path through its primary parent. Its other resolved
// paths are only kept in the path -> id map.
type Manager struct {
	rootID proto.NodeID
	ism    state.ItemStateManager

	mu         sync.Mutex
	generation uint64
	byID       map[proto.NodeID]proto.Path
	byPath     map[string]cacheEntry
	states     map[proto.NodeID]*state.NodeState
}

func New(rootID proto.NodeID, ism state.ItemStateManager) *Manager {
	m := &Manager{
		rootID: rootID,
		ism:    ism,
		byID:   make(map[proto.NodeID]proto.Path),
		byPath: make(map[string]cacheEntry),
		states: make(map[proto.NodeID]*state.NodeState),
	}
	root := proto.RootPath()
	m.byID[rootID] = root
	m.byPath[root.String()] = cacheEntry{path: root, id: rootID}
	return m
}

// ResolvePath resolves a path to the id of the item it denotes, or nil
// if there is no such item. When both a node and a property match the
// final step, the node wins.
func (m *Manager) ResolvePath(ctx context.Context, path proto.Path) (proto.ItemID, error) {
	return m.resolve(ctx, path, kindAny)
}

// ResolveNodePath resolves a path to a node id; the zero id means no
// node exists at the path.
func (m *Manager) ResolveNodePath(ctx context.Context, path proto.Path) (proto.NodeID, error) {
	item, err := m.resolve(ctx, path, kindNode)
	if err != nil || item == nil {
		return proto.NodeID{}, err
	}
	return item.(proto.NodeID), nil
}

// ResolvePropertyPath resolves a path to a property id; the zero id
// means no property exists at the path. Only paths whose final step
// carries no SNS index can denote a property.
func (m *Manager) ResolvePropertyPath(ctx context.Context, path proto.Path) (proto.PropertyID, error) {
	item, err := m.resolve(ctx, path, kindProperty)
	if err != nil || item == nil {
		return proto.PropertyID{}, err
	}
	return item.(proto.PropertyID), nil
}

// IsCached reports whether the id -> path mapping for the node is
// currently cached.
func (m *Manager) IsCached(id proto.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

type walkNode struct {
	id   proto.NodeID
	path proto.Path
	st   *state.NodeState
}

func (m *Manager) resolve(ctx context.Context, reqPath proto.Path, kind int) (proto.ItemID, error) {
	path, err := reqPath.Normalize()
	if err != nil {
		return nil, err
	}
	if !path.IsAbsolute() {
		return nil, apierrors.ErrInvalidName
	}

	m.mu.Lock()
	if e, ok := m.byPath[path.String()]; ok {
		switch kind {
		case kindAny:
			m.mu.Unlock()
			metrics.HierarchyCacheHits.Inc()
			return e.id, nil
		case kindNode:
			if id, isNode := e.id.(proto.NodeID); isNode {
				m.mu.Unlock()
				metrics.HierarchyCacheHits.Inc()
				return id, nil
			}
		case kindProperty:
			if id, isProp := e.id.(proto.PropertyID); isProp {
				m.mu.Unlock()
				metrics.HierarchyCacheHits.Inc()
				return id, nil
			}
		}
		// cached entry is of the wrong kind, fall through to a walk
	}

	// start from the deepest cached ancestor
	start, startPath := m.rootID, proto.RootPath()
	for degree := 1; degree < path.Length(); degree++ {
		anc, aerr := path.Ancestor(degree)
		if aerr != nil {
			break
		}
		if e, ok := m.byPath[anc.String()]; ok {
			if id, isNode := e.id.(proto.NodeID); isNode {
				start, startPath = id, e.path
				break
			}
		}
	}
	gen := m.generation
	m.mu.Unlock()
	metrics.HierarchyCacheMisses.Inc()

	var (
		visited []walkNode
		result  proto.ItemID
	)
	cur, curPath := start, startPath
	for i := startPath.Length(); i < path.Length(); i++ {
		elem := path.Element(i)
		st, serr := m.getNodeState(cur)
		if serr != nil {
			if errors.Is(serr, apierrors.ErrNoSuchItemState) {
				return nil, nil
			}
			return nil, serr
		}
		visited = append(visited, walkNode{id: cur, path: curPath, st: st})

		entry, found := st.GetChildNodeEntryAt(elem.Name, elem.NormalizedIndex())
		if i < path.Length()-1 {
			if !found {
				m.install(visited, nil, gen)
				return nil, nil
			}
			cur = entry.ID
			curPath = curPath.Child(elem.Name, elem.Index)
			continue
		}

		// final step
		wantNode := kind == kindNode || kind == kindAny
		wantProperty := kind == kindProperty || kind == kindAny
		if wantNode && found {
			leafPath := curPath.Child(elem.Name, elem.Index)
			if leafState, lerr := m.getNodeState(entry.ID); lerr == nil {
				visited = append(visited, walkNode{id: entry.ID, path: leafPath, st: leafState})
			}
			result = entry.ID
			break
		}
		if wantProperty && elem.Index == 0 && st.HasPropertyName(elem.Name) {
			propID := proto.PropertyID{Parent: cur, Name: elem.Name}
			var prop *cacheEntry
			if !found {
				// only cacheable while no equally named node obscures it
				prop = &cacheEntry{path: path, id: propID}
			}
			m.install(visited, prop, gen)
			return propID, nil
		}
	}

	m.install(visited, nil, gen)
	return result, nil
}

// GetPath returns the path of the node, walking ancestors through the
// ItemStateManager on a cache miss.
func (m *Manager) GetPath(id proto.NodeID) (proto.Path, error) {
	m.mu.Lock()
	if p, ok := m.byID[id]; ok {
		m.mu.Unlock()
		metrics.HierarchyCacheHits.Inc()
		return p, nil
	}
	gen := m.generation
	m.mu.Unlock()
	metrics.HierarchyCacheMisses.Inc()

	// climb to the root collecting one element per ancestor
	var (
		elements []proto.PathElement
		chain    []walkNode
	)
	cur := id
	for cur != m.rootID {
		st, err := m.getNodeState(cur)
		if err != nil {
			return proto.Path{}, err
		}
		parentID := st.ParentID()
		if parentID.IsZero() {
			return proto.Path{}, apierrors.ErrItemState
		}
		parent, err := m.getNodeState(parentID)
		if err != nil {
			return proto.Path{}, err
		}
		entry, index, ok := parent.GetChildNodeEntry(cur)
		if !ok {
			return proto.Path{}, apierrors.ErrItemState
		}
		elements = append(elements, proto.NamedElement(entry.Name, index))
		chain = append(chain, walkNode{id: cur, st: st})
		cur = parentID
	}
	chain = append(chain, walkNode{id: m.rootID, path: proto.RootPath()})
	if st, err := m.getNodeState(m.rootID); err == nil {
		chain[len(chain)-1].st = st
	}

	// elements[i] is the step from chain[i+1] down to chain[i]; assemble
	// the paths top-down
	path := proto.RootPath()
	for i := len(chain) - 2; i >= 0; i-- {
		elem := elements[i]
		path = path.Child(elem.Name, elem.Index)
		chain[i].path = path
	}
	m.install(chain, nil, gen)
	return path, nil
}

func (m *Manager) getNodeState(id proto.NodeID) (*state.NodeState, error) {
	item, err := m.ism.GetItemState(id)
	if err != nil {
		return nil, err
	}
	st, ok := item.(*state.NodeState)
	if !ok {
		return nil, apierrors.ErrItemState
	}
	return st, nil
}

// install subscribes to the visited states and, if no invalidating event
// arrived since gen was read, publishes their paths into both maps.
// Subscription happens before publication so no event can slip between
// the two; a stale walk result is dropped, never installed.
func (m *Manager) install(visited []walkNode, prop *cacheEntry, gen uint64) {
	for _, wn := range visited {
		if wn.st != nil {
			wn.st.SetContainer(m)
		}
	}

	m.mu.Lock()
	fresh := m.generation == gen
	if fresh {
		for _, wn := range visited {
			if wn.st != nil {
				m.states[wn.id] = wn.st
			}
			// a shareable node keeps the first path it was cached under,
			// whichever parent it runs through; later paths only enter
			// byPath
			if _, ok := m.byID[wn.id]; !ok {
				m.byID[wn.id] = wn.path
			}
			m.byPath[wn.path.String()] = cacheEntry{path: wn.path, id: wn.id}
		}
		if prop != nil {
			if _, occupied := m.byPath[prop.path.String()]; !occupied {
				m.byPath[prop.path.String()] = *prop
			}
		}
	}
	var detach []*state.NodeState
	if !fresh {
		// drop the walk: unsubscribe any state that is not legitimately
		// cached through a concurrent resolution
		for _, wn := range visited {
			if wn.st == nil {
				continue
			}
			if _, cached := m.byID[wn.id]; !cached {
				detach = append(detach, wn.st)
				delete(m.states, wn.id)
			}
		}
	}
	m.mu.Unlock()
	for _, st := range detach {
		st.SetContainer(nil)
	}
}

//----------------------------------------------------- NodeStateListener

// NodeAdded invalidates the cached paths of same-named siblings whose
// SNS index is at or above the inserted position; the new child itself
// is not prefetched.
func (m *Manager) NodeAdded(parent *state.NodeState, name proto.Name, index int, id proto.NodeID) {
	m.mu.Lock()
	m.generation++
	var evicted []*state.NodeState
	if parentPath, ok := m.byID[parent.NodeID()]; ok {
		evicted = m.evictChildrenLocked(parentPath, name, index)
	}
	m.mu.Unlock()
	m.detach(evicted, parent)
}

// NodeRemoved evicts the removed child's subtree and the subtrees of
// same-named siblings with a higher SNS index, whose indexes have
// shifted down.
func (m *Manager) NodeRemoved(parent *state.NodeState, name proto.Name, index int, id proto.NodeID) {
	m.mu.Lock()
	m.generation++
	var evicted []*state.NodeState
	if parentPath, ok := m.byID[parent.NodeID()]; ok {
		evicted = m.evictChildrenLocked(parentPath, name, index)
	}
	// the node may be cached through a path not below this parent (a
	// shared node removed through an alternate parent keeps its primary
	// path)
	if p, ok := m.byID[id]; ok {
		if parentPath, err := p.Parent(); err == nil && parentPath.Equals(m.byID[parent.NodeID()]) {
			evicted = append(evicted, m.evictSubtreeLocked(p, true)...)
		}
	}
	m.mu.Unlock()
	m.detach(evicted, parent)
}

// NodeModified carries no structural information the cache depends on.
func (m *Manager) NodeModified(n *state.NodeState) {}

// NodesReplaced evicts every cached descendant of the state; a reorder
// may have shifted any of their SNS indexes.
func (m *Manager) NodesReplaced(n *state.NodeState) {
	m.mu.Lock()
	m.generation++
	var evicted []*state.NodeState
	if path, ok := m.byID[n.NodeID()]; ok {
		evicted = m.evictSubtreeLocked(path, false)
	}
	m.mu.Unlock()
	m.detach(evicted, n)
}

// StateDiscarded evicts the state from both maps and unsubscribes.
func (m *Manager) StateDiscarded(item state.ItemState) {
	n, ok := item.(*state.NodeState)
	if !ok {
		return
	}
	m.mu.Lock()
	m.generation++
	var evicted []*state.NodeState
	if path, ok := m.byID[n.NodeID()]; ok {
		evicted = m.evictSubtreeLocked(path, true)
	}
	// a shared node may be reachable through alternate cached paths
	for key, e := range m.byPath {
		if id, isNode := e.id.(proto.NodeID); isNode && id == n.NodeID() {
			evicted = append(evicted, m.evictEntryLocked(key, e)...)
			evicted = append(evicted, m.evictSubtreeLocked(e.path, false)...)
		}
	}
	if st, ok := m.states[n.NodeID()]; ok {
		delete(m.states, n.NodeID())
		evicted = append(evicted, st)
	}
	m.mu.Unlock()
	m.detach(evicted, n)
}

// evictChildrenLocked evicts every cached entry below parentPath whose
// first step below the parent is name with SNS index >= minIndex.
func (m *Manager) evictChildrenLocked(parentPath proto.Path, name proto.Name, minIndex int) []*state.NodeState {
	if minIndex < 1 {
		minIndex = 1
	}
	var evicted []*state.NodeState
	depth := parentPath.Length()
	for key, e := range m.byPath {
		if e.path.Length() <= depth || !parentPath.IsAncestorOf(e.path) {
			continue
		}
		step := e.path.Element(depth)
		if step.Name != name || step.NormalizedIndex() < minIndex {
			continue
		}
		evicted = append(evicted, m.evictEntryLocked(key, e)...)
	}
	return evicted
}

// evictSubtreeLocked evicts every cached entry below path, and the entry
// of path itself when includeSelf is set.
func (m *Manager) evictSubtreeLocked(path proto.Path, includeSelf bool) []*state.NodeState {
	var evicted []*state.NodeState
	for key, e := range m.byPath {
		if path.IsAncestorOf(e.path) || (includeSelf && path.Equals(e.path)) {
			evicted = append(evicted, m.evictEntryLocked(key, e)...)
		}
	}
	return evicted
}

func (m *Manager) evictEntryLocked(key string, e cacheEntry) []*state.NodeState {
	delete(m.byPath, key)
	metrics.HierarchyCacheEvictions.Inc()
	id, isNode := e.id.(proto.NodeID)
	if !isNode {
		return nil
	}
	if cached, ok := m.byID[id]; !ok || !cached.Equals(e.path) {
		return nil
	}
	delete(m.byID, id)
	if st, ok := m.states[id]; ok {
		delete(m.states, id)
		return []*state.NodeState{st}
	}
	return nil
}

// detach unsubscribes evicted states outside the manager lock. The event
// source stays subscribed: delivery runs inside its critical section and
// it is still cached anyway.
func (m *Manager) detach(evicted []*state.NodeState, source *state.NodeState) {
	for _, st := range evicted {
		if st == source {
			continue
		}
		st.SetContainer(nil)
	}
	if len(evicted) > 0 {
		log.Debugf("hierarchy cache evicted %d entries", len(evicted))
	}
}
