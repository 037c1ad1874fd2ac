package state

import "github.com/contentlake/bundledb/proto"

// NodeStateListener observes structural mutations of a NodeState it is
// installed on via SetContainer. Events are delivered synchronously while
// the source's mutation critical section is held, so implementations must
// not call back into the source's accessors from inside a callback; the
// event arguments and the source's immutable id are safe to use.
type NodeStateListener interface {
	// NodeAdded reports a new child entry with the given name at the
	// given 1-based SNS index.
	NodeAdded(parent *NodeState, name proto.Name, index int, id proto.NodeID)

	// NodeRemoved reports a removed child entry. Surviving entries with
	// the same name and a higher SNS index shift down by one.
	NodeRemoved(parent *NodeState, name proto.Name, index int, id proto.NodeID)

	// NodeModified reports an opaque change of the state.
	NodeModified(n *NodeState)

	// NodesReplaced reports a wholesale replacement of the child entry
	// list; SNS indexes must be recomputed.
	NodesReplaced(n *NodeState)

	// StateDiscarded reports that the state is being removed from memory.
	StateDiscarded(n ItemState)
}
