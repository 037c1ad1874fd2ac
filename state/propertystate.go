package state

import (
	"sync"

	"github.com/contentlake/bundledb/proto"
)

// PropertyState is the in-memory state of one property.
type PropertyState struct {
	mu sync.Mutex

	id          proto.PropertyID
	typ         int
	multiValued bool
	modCount    int
	values      []proto.Value
	status      int

	listener NodeStateListener
}

func NewPropertyState(id proto.PropertyID, status int) *PropertyState {
	return &PropertyState{id: id, status: status}
}

func (p *PropertyState) ID() proto.ItemID             { return p.id }
func (p *PropertyState) PropertyID() proto.PropertyID { return p.id }
func (p *PropertyState) IsNode() bool                 { return false }

func (p *PropertyState) Status() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *PropertyState) SetStatus(status int) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func (p *PropertyState) Type() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typ
}

func (p *PropertyState) IsMultiValued() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.multiValued
}

// SetValues installs the property values. A single-valued property holds
// exactly one value.
func (p *PropertyState) SetValues(typ int, multiValued bool, values []proto.Value) {
	p.mu.Lock()
	p.typ = typ
	p.multiValued = multiValued
	p.values = append(p.values[:0:0], values...)
	p.modCount++
	p.mu.Unlock()
}

func (p *PropertyState) Values() []proto.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]proto.Value, len(p.values))
	copy(out, p.values)
	return out
}

func (p *PropertyState) ModCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modCount
}

func (p *PropertyState) SetModCount(c int) {
	p.mu.Lock()
	p.modCount = c
	p.mu.Unlock()
}

func (p *PropertyState) SetContainer(listener NodeStateListener) {
	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()
}

func (p *PropertyState) Discard() {
	p.mu.Lock()
	l := p.listener
	p.listener = nil
	p.mu.Unlock()
	if l != nil {
		l.StateDiscarded(p)
	}
}
