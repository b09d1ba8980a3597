package query

import "github.com/brightgate-labs/reactor/internal/component"

// ValueFilterKind selects which shape a ValueFilter node takes.
type ValueFilterKind int

const (
	VFIf ValueFilterKind = iota
	VFAnd
	VFOr
	VFNot
)

// ValueFilter is a recursive predicate over component values (spec §4.3).
// The If leaf implicitly requires the entity to carry a component of
// Value's type, since an absent component has nothing to compare.
type ValueFilter struct {
	Kind     ValueFilterKind
	Op       component.CmpOp
	Value    component.Component // If
	Children []*ValueFilter       // And, Or
	Child    *ValueFilter         // Not
}

// If builds a leaf comparing the entity's component of Value's type to
// Value using op.
func If(op component.CmpOp, value component.Component) *ValueFilter {
	return &ValueFilter{Kind: VFIf, Op: op, Value: value}
}

// AndValues conjoins a set of ValueFilter nodes.
func AndValues(children ...*ValueFilter) *ValueFilter {
	return &ValueFilter{Kind: VFAnd, Children: children}
}

// OrValues disjoins a set of ValueFilter nodes.
func OrValues(children ...*ValueFilter) *ValueFilter {
	return &ValueFilter{Kind: VFOr, Children: children}
}

// NotValue negates a ValueFilter node.
func NotValue(child *ValueFilter) *ValueFilter { return &ValueFilter{Kind: VFNot, Child: child} }

func (f *ValueFilter) eval(get func(component.ComponentType) (component.Component, bool)) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case VFIf:
		v, ok := get(f.Value.Type())
		if !ok {
			return false
		}
		return component.Compare(f.Op, v, f.Value)
	case VFAnd:
		for _, c := range f.Children {
			if !c.eval(get) {
				return false
			}
		}
		return true
	case VFOr:
		for _, c := range f.Children {
			if c.eval(get) {
				return true
			}
		}
		return len(f.Children) == 0
	case VFNot:
		return !f.Child.eval(get)
	}
	return true
}

// CollectForced walks f's conjunctive positions appending the component
// types an entity matching f must carry (spec §4.4 step 6).
func (f *ValueFilter) CollectForced(out *[]component.ComponentType) {
	if f == nil {
		return
	}
	switch f.Kind {
	case VFIf:
		addType(out, f.Value.Type())
	case VFAnd:
		for _, c := range f.Children {
			c.CollectForced(out)
		}
	}
}
