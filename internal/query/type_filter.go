package query

import "github.com/brightgate-labs/reactor/internal/component"

// TypeFilterKind selects which shape a TypeFilter node takes.
type TypeFilterKind int

const (
	TFWith TypeFilterKind = iota
	TFWithout
	TFAnd
	TFOr
	TFNot
)

// TypeFilter is a recursive predicate over which component types an entity
// carries (spec §4.3). Leaves are With(T)/Without(T); internal nodes are
// And/Or/Not.
type TypeFilter struct {
	Kind     TypeFilterKind
	Type     component.ComponentType // With, Without
	Children []*TypeFilter           // And, Or
	Child    *TypeFilter             // Not
}

// With builds a leaf requiring the entity to carry t.
func With(t component.ComponentType) *TypeFilter { return &TypeFilter{Kind: TFWith, Type: t} }

// Without builds a leaf requiring the entity to lack t.
func Without(t component.ComponentType) *TypeFilter { return &TypeFilter{Kind: TFWithout, Type: t} }

// AndTypes conjoins a set of TypeFilter nodes.
func AndTypes(children ...*TypeFilter) *TypeFilter {
	return &TypeFilter{Kind: TFAnd, Children: children}
}

// OrTypes disjoins a set of TypeFilter nodes.
func OrTypes(children ...*TypeFilter) *TypeFilter {
	return &TypeFilter{Kind: TFOr, Children: children}
}

// NotType negates a TypeFilter node.
func NotType(child *TypeFilter) *TypeFilter { return &TypeFilter{Kind: TFNot, Child: child} }

func (f *TypeFilter) eval(has func(component.ComponentType) bool) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case TFWith:
		return has(f.Type)
	case TFWithout:
		return !has(f.Type)
	case TFAnd:
		for _, c := range f.Children {
			if !c.eval(has) {
				return false
			}
		}
		return true
	case TFOr:
		for _, c := range f.Children {
			if c.eval(has) {
				return true
			}
		}
		return len(f.Children) == 0
	case TFNot:
		return !f.Child.eval(has)
	}
	return true
}

// CollectForced walks f's conjunctive positions (bare With, top-level And
// members) and appends the component types an entity matching f must carry.
// Without, Or and Not are never safe to hoist (spec §4.4 step 6).
func (f *TypeFilter) CollectForced(out *[]component.ComponentType) {
	if f == nil {
		return
	}
	switch f.Kind {
	case TFWith:
		addType(out, f.Type)
	case TFAnd:
		for _, c := range f.Children {
			c.CollectForced(out)
		}
	}
}
