package query

import (
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
)

// EntityFilterKind selects which shape an EntityFilter node takes.
type EntityFilterKind int

const (
	EFAll EntityFilterKind = iota
	EFAny
	EFNot
	EFID
	EFTypeFilter
	EFValueFilter
	EFComponentCount
	EFLastUpdate
	EFHasAll
	EFHasAny
)

// EntityFilter is the recursive predicate tree evaluated per entity (spec
// §4.3). Leaves narrow on id, nested TypeFilter/ValueFilter trees, last
// update age, component count, or a HasAll/HasAny type set; internal nodes
// are All/Any/Not.
type EntityFilter struct {
	Kind EntityFilterKind

	Children []*EntityFilter // All, Any
	Child    *EntityFilter   // Not

	ID             EntityIDClause
	TypeFilter     *TypeFilter
	ValueFilter    *ValueFilter
	ComponentCount CmpClause
	LastUpdate     DurationClause
	HasAllTypes    []component.ComponentType
	HasAnyTypes    []component.ComponentType
}

// AllEntity conjoins a set of EntityFilter nodes.
func AllEntity(children ...*EntityFilter) *EntityFilter {
	return &EntityFilter{Kind: EFAll, Children: children}
}

// AnyEntity disjoins a set of EntityFilter nodes.
func AnyEntity(children ...*EntityFilter) *EntityFilter {
	return &EntityFilter{Kind: EFAny, Children: children}
}

// NotEntity negates an EntityFilter node.
func NotEntity(child *EntityFilter) *EntityFilter { return &EntityFilter{Kind: EFNot, Child: child} }

// HasAllEntity requires the entity to carry every type in types.
func HasAllEntity(types ...component.ComponentType) *EntityFilter {
	return &EntityFilter{Kind: EFHasAll, HasAllTypes: types}
}

// HasAnyEntity requires the entity to carry at least one type in types.
func HasAnyEntity(types ...component.ComponentType) *EntityFilter {
	return &EntityFilter{Kind: EFHasAny, HasAnyTypes: types}
}

// Entity abstracts the read surface an EntityFilter evaluates against,
// satisfied by *tree.Entity.
type Entity interface {
	ID() string
	Has(t component.ComponentType) bool
	Get(t component.ComponentType) (component.Component, bool)
	ComponentCount() int
	LastUpdate() time.Time
}

// Eval reports whether e satisfies f as of now.
func (f *EntityFilter) Eval(e Entity, now time.Time) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case EFAll:
		for _, c := range f.Children {
			if !c.Eval(e, now) {
				return false
			}
		}
		return true
	case EFAny:
		for _, c := range f.Children {
			if c.Eval(e, now) {
				return true
			}
		}
		return len(f.Children) == 0
	case EFNot:
		return !f.Child.Eval(e, now)
	case EFID:
		return f.ID.eval(e.ID())
	case EFTypeFilter:
		return f.TypeFilter.eval(e.Has)
	case EFValueFilter:
		return f.ValueFilter.eval(e.Get)
	case EFComponentCount:
		return f.ComponentCount.eval(e.ComponentCount())
	case EFLastUpdate:
		return f.LastUpdate.eval(now, e.LastUpdate())
	case EFHasAll:
		for _, t := range f.HasAllTypes {
			if !e.Has(t) {
				return false
			}
		}
		return true
	case EFHasAny:
		for _, t := range f.HasAnyTypes {
			if e.Has(t) {
				return true
			}
		}
		return len(f.HasAnyTypes) == 0
	}
	return true
}

// addType appends t to out if not already present.
func addType(out *[]component.ComponentType, t component.ComponentType) {
	for _, existing := range *out {
		if existing == t {
			return
		}
	}
	*out = append(*out, t)
}

// CollectForced walks f's conjunctive top-level (All recursion, bare
// TypeFilter/ValueFilter in conjunctive position, HasAll) appending the
// component types any matching entity must carry (spec §4.4 step 6). Any,
// Not and HasAny are never hoisted from directly; see optimize package for
// the Or-branch HasAll augmentation.
func (f *EntityFilter) CollectForced(out *[]component.ComponentType) {
	if f == nil {
		return
	}
	switch f.Kind {
	case EFAll:
		for _, c := range f.Children {
			c.CollectForced(out)
		}
	case EFTypeFilter:
		f.TypeFilter.CollectForced(out)
	case EFValueFilter:
		f.ValueFilter.CollectForced(out)
	case EFHasAll:
		for _, t := range f.HasAllTypes {
			addType(out, t)
		}
	}
}
