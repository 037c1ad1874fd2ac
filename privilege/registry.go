package privilege

import (
	"sort"
	"strings"
	"sync"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/proto"
)

// Built-in privilege names. Built-ins are reserved: they can neither be
// redefined nor appear in the aggregates of a custom definition.
var (
	NameRead               = proto.MustName(proto.NSJCRURI, "read")
	NameModifyProperties   = proto.MustName(proto.NSJCRURI, "modifyProperties")
	NameAddChildNodes      = proto.MustName(proto.NSJCRURI, "addChildNodes")
	NameRemoveChildNodes   = proto.MustName(proto.NSJCRURI, "removeChildNodes")
	NameRemoveNode         = proto.MustName(proto.NSJCRURI, "removeNode")
	NameNodeTypeManagement = proto.MustName(proto.NSJCRURI, "nodeTypeManagement")
	NameWrite              = proto.MustName(proto.NSJCRURI, "write")
	NameRepWrite           = proto.MustName(proto.NSInternalURI, "write")
	NameAll                = proto.MustName(proto.NSJCRURI, "all")
)

// Definition is one privilege definition: a simple privilege when
// DeclaredAggregateNames is empty, an aggregate otherwise.
type Definition struct {
	Name                   proto.Name
	Abstract               bool
	DeclaredAggregateNames []proto.Name
	Custom                 bool
}

func (d *Definition) IsAggregate() bool { return len(d.DeclaredAggregateNames) > 0 }

// Registry holds the built-in privilege definitions plus the custom ones
// loaded at construction or registered later. Every mutation re-runs the
// full validation; on failure the registry is left untouched.
type Registry struct {
	mu       sync.RWMutex
	builtins map[proto.Name]*Definition
	custom   map[proto.Name]*Definition

	// declared aggregates of jcr:all, grown by every registration
	allAggregates []proto.Name
}

// NewRegistry loads a set of custom definitions, validating them as a
// whole.
func NewRegistry(defs []*Definition) (*Registry, error) {
	r := &Registry{
		builtins: builtinDefinitions(),
		custom:   make(map[proto.Name]*Definition),
	}
	r.allAggregates = append(r.allAggregates, r.builtins[NameAll].DeclaredAggregateNames...)

	incoming := make(map[proto.Name]*Definition, len(defs))
	for _, d := range defs {
		if _, ok := incoming[d.Name]; ok {
			return nil, apierrors.ErrDuplicateName
		}
		incoming[d.Name] = d
	}
	if err := r.validate(incoming); err != nil {
		return nil, err
	}
	for name, d := range incoming {
		d.Custom = true
		r.custom[name] = d
		r.allAggregates = append(r.allAggregates, name)
	}
	return r, nil
}

// RegisterDefinition validates and adds one custom definition. The whole
// definition set is re-validated; partial state never survives a
// failure.
func (r *Registry) RegisterDefinition(name proto.Name, abstract bool, aggregateNames []proto.Name) (*Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builtins[name]; ok {
		return nil, apierrors.ErrDuplicateName
	}
	if _, ok := r.custom[name]; ok {
		return nil, apierrors.ErrDuplicateName
	}

	def := &Definition{
		Name:                   name,
		Abstract:               abstract,
		DeclaredAggregateNames: append([]proto.Name(nil), aggregateNames...),
		Custom:                 true,
	}
	if err := r.validate(map[proto.Name]*Definition{name: def}); err != nil {
		return nil, err
	}
	r.custom[name] = def
	r.allAggregates = append(r.allAggregates, name)
	return def, nil
}

// Get returns a definition by name, built-in or custom.
func (r *Registry) Get(name proto.Name) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == NameAll {
		d := *r.builtins[NameAll]
		d.DeclaredAggregateNames = append([]proto.Name(nil), r.allAggregates...)
		return &d, true
	}
	if d, ok := r.builtins[name]; ok {
		return d, true
	}
	d, ok := r.custom[name]
	return d, ok
}

// All returns every registered definition.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.builtins)+len(r.custom))
	for _, d := range r.builtins {
		out = append(out, d)
	}
	for _, d := range r.custom {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name.String() < out[j].Name.String()
	})
	return out
}

// validate checks incoming definitions against the current custom set:
// every declared aggregate must resolve, no aggregate may reach a
// built-in, the aggregation graph must be acyclic, and no two
// definitions may share a non-empty leaf set. The registry itself is not
// modified.
func (r *Registry) validate(incoming map[proto.Name]*Definition) error {
	all := make(map[proto.Name]*Definition, len(r.custom)+len(incoming))
	for name, d := range r.custom {
		all[name] = d
	}
	for name, d := range incoming {
		if _, ok := all[name]; ok {
			return apierrors.ErrDuplicateName
		}
		all[name] = d
	}

	for _, d := range all {
		for _, aggr := range d.DeclaredAggregateNames {
			if _, ok := r.builtins[aggr]; ok {
				return &apierrors.AggregationNotSupportedError{
					Name:    d.Name.String(),
					BuiltIn: aggr.String(),
				}
			}
			if _, ok := all[aggr]; !ok {
				return apierrors.ErrNoSuchPrivilege
			}
		}
	}

	if err := checkAcyclic(all); err != nil {
		return err
	}

	// no two definitions may resolve to the same non-empty leaf set
	leaves := make(map[proto.Name]map[proto.Name]struct{}, len(all))
	for name := range all {
		collectLeaves(name, all, leaves)
	}
	byLeafSet := make(map[string]proto.Name, len(all))
	for name, set := range leaves {
		if len(set) == 0 {
			continue
		}
		key := leafSetKey(set)
		if other, ok := byLeafSet[key]; ok {
			return &apierrors.EquivalentDefinitionsError{
				Name:  name.String(),
				Other: other.String(),
			}
		}
		byLeafSet[key] = name
	}
	return nil
}

// checkAcyclic runs a three-color depth-first search over the
// aggregation graph. A back edge to a gray node is a cycle.
func checkAcyclic(all map[proto.Name]*Definition) error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[proto.Name]int, len(all))

	var visit func(name proto.Name, trail []string) error
	visit = func(name proto.Name, trail []string) error {
		color[name] = gray
		trail = append(trail, name.String())
		for _, aggr := range all[name].DeclaredAggregateNames {
			if _, ok := all[aggr]; !ok {
				continue
			}
			switch color[aggr] {
			case gray:
				return &apierrors.CyclicDefinitionsError{
					Cycle: append(trail, aggr.String()),
				}
			case white:
				if err := visit(aggr, trail); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}

	for name := range all {
		if color[name] == white {
			if err := visit(name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectLeaves memoizes the non-aggregate leaf set of each definition.
func collectLeaves(name proto.Name, all map[proto.Name]*Definition, memo map[proto.Name]map[proto.Name]struct{}) map[proto.Name]struct{} {
	if set, ok := memo[name]; ok {
		return set
	}
	d := all[name]
	set := make(map[proto.Name]struct{})
	memo[name] = set
	for _, aggr := range d.DeclaredAggregateNames {
		if sub, ok := all[aggr]; ok {
			if !sub.IsAggregate() {
				set[aggr] = struct{}{}
				continue
			}
			for leaf := range collectLeaves(aggr, all, memo) {
				set[leaf] = struct{}{}
			}
		}
	}
	return set
}

func leafSetKey(set map[proto.Name]struct{}) string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n.String())
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func builtinDefinitions() map[proto.Name]*Definition {
	defs := []*Definition{
		{Name: NameRead},
		{Name: NameModifyProperties},
		{Name: NameAddChildNodes},
		{Name: NameRemoveChildNodes},
		{Name: NameRemoveNode},
		{Name: NameNodeTypeManagement},
		{Name: NameWrite, DeclaredAggregateNames: []proto.Name{
			NameModifyProperties, NameAddChildNodes, NameRemoveChildNodes, NameRemoveNode,
		}},
		{Name: NameRepWrite, DeclaredAggregateNames: []proto.Name{
			NameWrite, NameNodeTypeManagement,
		}},
		{Name: NameAll, DeclaredAggregateNames: []proto.Name{
			NameRead, NameRepWrite,
		}},
	}
	out := make(map[proto.Name]*Definition, len(defs))
	for _, d := range defs {
		out[d.Name] = d
	}
	return out
}
