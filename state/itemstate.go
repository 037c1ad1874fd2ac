package state

import (
	"sync"

	"github.com/contentlake/bundledb/proto"
)

// ItemState is the in-memory representation of one repository item.
type ItemState interface {
	ID() proto.ItemID
	IsNode() bool
	Status() int
	SetStatus(status int)

	// SetContainer installs the single listener slot. A nil listener
	// detaches the current one.
	SetContainer(listener NodeStateListener)

	// Discard notifies the listener that the state is being removed from
	// memory and detaches it.
	Discard()
}

// ChildNodeEntry is one ordered child reference of a node. The SNS index
// of an entry is its 1-based position among siblings with the same name
// and is derived from the entry list, never stored.
type ChildNodeEntry struct {
	Name proto.Name
	ID   proto.NodeID
}

// NodeState is the aggregate state of a node: its type, parent link,
// ordered child entries, property names and, for shareable nodes, the set
// of alternate parents.
//
// All mutators run under an internal critical section; listener events
// are delivered synchronously inside it.
type NodeState struct {
	mu sync.Mutex

	id          proto.NodeID
	primaryType proto.Name
	parentID    proto.NodeID
	status      int

	mixins        []proto.Name
	children      []ChildNodeEntry
	propertyNames map[proto.Name]struct{}
	sharedSet     []proto.NodeID
	modCount      int

	listener NodeStateListener
}

func NewNodeState(id proto.NodeID, primaryType proto.Name, parentID proto.NodeID, status int) *NodeState {
	return &NodeState{
		id:            id,
		primaryType:   primaryType,
		parentID:      parentID,
		status:        status,
		propertyNames: make(map[proto.Name]struct{}),
	}
}

func (n *NodeState) ID() proto.ItemID     { return n.id }
func (n *NodeState) NodeID() proto.NodeID { return n.id }
func (n *NodeState) IsNode() bool         { return true }

func (n *NodeState) PrimaryType() proto.Name {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.primaryType
}

func (n *NodeState) Status() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *NodeState) SetStatus(status int) {
	n.mu.Lock()
	n.status = status
	if n.listener != nil {
		n.listener.NodeModified(n)
	}
	n.mu.Unlock()
}

func (n *NodeState) ParentID() proto.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parentID
}

// SetParentID repoints the primary parent link, as happens on move and on
// share removal.
func (n *NodeState) SetParentID(parentID proto.NodeID) {
	n.mu.Lock()
	n.parentID = parentID
	n.modCount++
	n.mu.Unlock()
}

func (n *NodeState) ModCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.modCount
}

func (n *NodeState) SetModCount(c int) {
	n.mu.Lock()
	n.modCount = c
	n.mu.Unlock()
}

func (n *NodeState) MixinTypes() []proto.Name {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]proto.Name, len(n.mixins))
	copy(out, n.mixins)
	return out
}

func (n *NodeState) SetMixinTypes(mixins []proto.Name) {
	n.mu.Lock()
	n.mixins = append(n.mixins[:0], mixins...)
	n.mu.Unlock()
}

func (n *NodeState) SetContainer(listener NodeStateListener) {
	n.mu.Lock()
	n.listener = listener
	n.mu.Unlock()
}

func (n *NodeState) Discard() {
	n.mu.Lock()
	l := n.listener
	n.listener = nil
	if l != nil {
		l.StateDiscarded(n)
	}
	n.mu.Unlock()
}

//---------------------------------------------------------- child entries

// entryIndex returns the 1-based SNS index of entry i within entries.
func entryIndex(entries []ChildNodeEntry, i int) int {
	index := 1
	for j := 0; j < i; j++ {
		if entries[j].Name == entries[i].Name {
			index++
		}
	}
	return index
}

// ChildNodeEntries returns a copy of the ordered child entry list.
func (n *NodeState) ChildNodeEntries() []ChildNodeEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ChildNodeEntry, len(n.children))
	copy(out, n.children)
	return out
}

// GetChildNodeEntry finds the entry referencing id and its SNS index.
func (n *NodeState) GetChildNodeEntry(id proto.NodeID) (ChildNodeEntry, int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.children {
		if e.ID == id {
			return e, entryIndex(n.children, i), true
		}
	}
	return ChildNodeEntry{}, 0, false
}

// GetChildNodeEntryAt finds the entry with the given name and 1-based SNS
// index.
func (n *NodeState) GetChildNodeEntryAt(name proto.Name, index int) (ChildNodeEntry, bool) {
	if index < 1 {
		index = 1
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	seen := 0
	for _, e := range n.children {
		if e.Name == name {
			seen++
			if seen == index {
				return e, true
			}
		}
	}
	return ChildNodeEntry{}, false
}

// AddChildNodeEntry appends a child entry and reports its SNS index.
func (n *NodeState) AddChildNodeEntry(name proto.Name, id proto.NodeID) int {
	n.mu.Lock()
	n.children = append(n.children, ChildNodeEntry{Name: name, ID: id})
	index := entryIndex(n.children, len(n.children)-1)
	n.modCount++
	l := n.listener
	if l != nil {
		l.NodeAdded(n, name, index, id)
	}
	n.mu.Unlock()
	return index
}

// RemoveChildNodeEntry removes the entry referencing id. Surviving higher
// SNS indexes for the same name shift down by one.
func (n *NodeState) RemoveChildNodeEntry(id proto.NodeID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.children {
		if e.ID == id {
			n.removeEntryLocked(i)
			return true
		}
	}
	return false
}

// RemoveChildNodeEntryAt removes the entry with the given name and SNS
// index.
func (n *NodeState) RemoveChildNodeEntryAt(name proto.Name, index int) bool {
	if index < 1 {
		index = 1
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	seen := 0
	for i, e := range n.children {
		if e.Name == name {
			seen++
			if seen == index {
				n.removeEntryLocked(i)
				return true
			}
		}
	}
	return false
}

func (n *NodeState) removeEntryLocked(i int) {
	e := n.children[i]
	index := entryIndex(n.children, i)
	n.children = append(n.children[:i], n.children[i+1:]...)
	n.modCount++
	if n.listener != nil {
		n.listener.NodeRemoved(n, e.Name, index, e.ID)
	}
}

// RenameChildNodeEntry renames the entry with the given name and SNS
// index in place. The rename is reported as a removal followed by an
// addition of the renamed entry.
func (n *NodeState) RenameChildNodeEntry(name proto.Name, index int, newName proto.Name) bool {
	if index < 1 {
		index = 1
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	seen := 0
	for i, e := range n.children {
		if e.Name == name {
			seen++
			if seen == index {
				n.children[i].Name = newName
				n.modCount++
				if n.listener != nil {
					n.listener.NodeRemoved(n, e.Name, index, e.ID)
					n.listener.NodeAdded(n, newName, entryIndex(n.children, i), e.ID)
				}
				return true
			}
		}
	}
	return false
}

// SetChildNodeEntries replaces the child entry list wholesale, as reorder
// does. SNS indexes must be recomputed by any observer.
func (n *NodeState) SetChildNodeEntries(entries []ChildNodeEntry) {
	n.mu.Lock()
	n.children = append(n.children[:0:0], entries...)
	n.modCount++
	l := n.listener
	if l != nil {
		l.NodesReplaced(n)
	}
	n.mu.Unlock()
}

//------------------------------------------------------------- properties

func (n *NodeState) AddPropertyName(name proto.Name) {
	n.mu.Lock()
	n.propertyNames[name] = struct{}{}
	n.modCount++
	n.mu.Unlock()
}

func (n *NodeState) RemovePropertyName(name proto.Name) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.propertyNames[name]; !ok {
		return false
	}
	delete(n.propertyNames, name)
	n.modCount++
	return true
}

func (n *NodeState) HasPropertyName(name proto.Name) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.propertyNames[name]
	return ok
}

func (n *NodeState) PropertyNames() []proto.Name {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]proto.Name, 0, len(n.propertyNames))
	for name := range n.propertyNames {
		out = append(out, name)
	}
	return out
}

//-------------------------------------------------------------- shared set

// AddShare records an alternate parent of a shareable node.
func (n *NodeState) AddShare(parentID proto.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range n.sharedSet {
		if id == parentID {
			return
		}
	}
	n.sharedSet = append(n.sharedSet, parentID)
	n.modCount++
}

// RemoveShare drops parentID from the shared set and returns the number
// of remaining entries. If the removed parent was the primary parent, the
// primary parent link is repointed to an arbitrary surviving member.
func (n *NodeState) RemoveShare(parentID proto.NodeID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, id := range n.sharedSet {
		if id == parentID {
			n.sharedSet = append(n.sharedSet[:i], n.sharedSet[i+1:]...)
			n.modCount++
			break
		}
	}
	if n.parentID == parentID && len(n.sharedSet) > 0 {
		n.parentID = n.sharedSet[0]
	}
	return len(n.sharedSet)
}

func (n *NodeState) IsShareable() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sharedSet) > 0
}

func (n *NodeState) ContainsShare(parentID proto.NodeID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range n.sharedSet {
		if id == parentID {
			return true
		}
	}
	return false
}

func (n *NodeState) SharedSet() []proto.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]proto.NodeID, len(n.sharedSet))
	copy(out, n.sharedSet)
	return out
}

func (n *NodeState) SetSharedSet(set []proto.NodeID) {
	n.mu.Lock()
	n.sharedSet = append(n.sharedSet[:0:0], set...)
	n.mu.Unlock()
}
