package state

import "github.com/contentlake/bundledb/proto"

// NodeReferences records the reference properties pointing at a node.
type NodeReferences struct {
	Target     proto.NodeID
	References []proto.PropertyID
}

// ItemStateManager provides lookup of item states by id. Implementations
// are safe for concurrent use. Lookup of an unknown id fails with
// errors.ErrNoSuchItemState; other failures with errors.ErrItemState.
type ItemStateManager interface {
	GetItemState(id proto.ItemID) (ItemState, error)
	HasItemState(id proto.ItemID) bool
	GetNodeReferences(id proto.NodeID) (*NodeReferences, error)
	HasNodeReferences(id proto.NodeID) bool
}
