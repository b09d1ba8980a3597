package optimize

import (
	"reflect"
	"sort"

	"github.com/brightgate-labs/reactor/internal/query"
)

func rewriteType(f *query.TypeFilter) *query.TypeFilter {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case query.TFAnd, query.TFOr:
		children := flattenType(f.Kind, f.Children)
		children = dedupeType(children)
		if len(children) == 0 {
			return nil
		}
		if len(children) == 1 {
			return children[0]
		}
		return &query.TypeFilter{Kind: f.Kind, Children: children}
	case query.TFNot:
		child := rewriteType(f.Child)
		if child == nil {
			return nil
		}
		switch child.Kind {
		case query.TFWith:
			return query.Without(child.Type)
		case query.TFWithout:
			return query.With(child.Type)
		case query.TFNot:
			return child.Child
		}
		return &query.TypeFilter{Kind: query.TFNot, Child: child}
	default:
		return f
	}
}

func flattenType(kind query.TypeFilterKind, children []*query.TypeFilter) []*query.TypeFilter {
	var out []*query.TypeFilter
	for _, c := range children {
		c = rewriteType(c)
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

func dedupeType(children []*query.TypeFilter) []*query.TypeFilter {
	var out []*query.TypeFilter
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

func reorderType(f *query.TypeFilter) {
	if f == nil || (f.Kind != query.TFAnd && f.Kind != query.TFOr) {
		return
	}
	for _, c := range f.Children {
		reorderType(c)
	}
	sort.SliceStable(f.Children, func(i, j int) bool {
		return typeFilterCost(f.Children[i]) < typeFilterCost(f.Children[j])
	})
}

// Type runs the fixed-point rewrite sequence over a TypeFilter tree (spec
// §4.4 step 4: "Not(With(T)) -> Without(T), Not(Without(T)) -> With(T)").
func Type(f *query.TypeFilter) *query.TypeFilter {
	for {
		next := rewriteType(f)
		if reflect.DeepEqual(next, f) {
			f = next
			break
		}
		f = next
	}
	reorderType(f)
	return f
}
