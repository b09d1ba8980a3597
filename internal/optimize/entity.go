package optimize

import (
	"reflect"
	"sort"

	"github.com/brightgate-labs/reactor/internal/query"
)

func rewriteEntity(f *query.EntityFilter) *query.EntityFilter {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case query.EFAll, query.EFAny:
		children := flattenEntity(f.Kind, f.Children)
		children = dedupeEntity(children)
		if len(children) == 0 {
			return nil
		}
		if len(children) == 1 {
			return children[0]
		}
		return &query.EntityFilter{Kind: f.Kind, Children: children}
	case query.EFNot:
		child := rewriteEntity(f.Child)
		if child == nil {
			return nil
		}
		if child.Kind == query.EFNot {
			return child.Child
		}
		return &query.EntityFilter{Kind: query.EFNot, Child: child}
	case query.EFTypeFilter:
		tf := Type(f.TypeFilter)
		if tf == nil {
			return nil
		}
		return &query.EntityFilter{Kind: query.EFTypeFilter, TypeFilter: tf}
	case query.EFValueFilter:
		vf := Value(f.ValueFilter)
		if vf == nil {
			return nil
		}
		return &query.EntityFilter{Kind: query.EFValueFilter, ValueFilter: vf}
	default:
		return f
	}
}

func flattenEntity(kind query.EntityFilterKind, children []*query.EntityFilter) []*query.EntityFilter {
	var out []*query.EntityFilter
	for _, c := range children {
		c = rewriteEntity(c)
		if c == nil {
			continue
		}
		if c.Kind == kind {
			out = append(out, c.Children...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func dedupeEntity(children []*query.EntityFilter) []*query.EntityFilter {
	var out []*query.EntityFilter
	for _, c := range children {
		dup := false
		for _, existing := range out {
			if reflect.DeepEqual(c, existing) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func reorderEntity(f *query.EntityFilter) {
	if f == nil {
		return
	}
	switch f.Kind {
	case query.EFAll, query.EFAny:
		for _, c := range f.Children {
			reorderEntity(c)
		}
		sort.SliceStable(f.Children, func(i, j int) bool {
			return entityFilterCost(f.Children[i]) < entityFilterCost(f.Children[j])
		})
	case query.EFNot:
		reorderEntity(f.Child)
	}
}

// Entity runs the fixed-point rewrite sequence over an EntityFilter tree,
// delegating into the nested TypeFilter/ValueFilter sub-trees.
func Entity(f *query.EntityFilter) *query.EntityFilter {
	for {
		next := rewriteEntity(f)
		if reflect.DeepEqual(next, f) {
			f = next
			break
		}
		f = next
	}
	reorderEntity(f)
	return f
}
