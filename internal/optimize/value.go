package optimize

import (
	"reflect"
	"sort"

	"github.com/brightgate-labs/reactor/internal/query"
)

func rewriteValue(f *query.ValueFilter) *query.ValueFilter {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case query.VFAnd, query.VFOr:
		children := flattenValue(f.Kind, f.Children)
		children = dedupeValue(children)
		if len(children) == 0 {
			return nil
		}
		if len(children) == 1 {
			return children[0]
		}
		return &query.ValueFilter{Kind: f.Kind, Children: children}
	case query.VFNot:
		child := rewriteValue(f.Child)
		if child == nil {
			return nil
		}
		if child.Kind == query.VFNot {
			return child.Child
		}
		return &query.ValueFilter{Kind: query.VFNot, Child: child}
	default:
		return f
	}
}

func flattenValue(kind query.ValueFilterKind, children []*query.ValueFilter) []*query.ValueFilter {
	var out []*query.ValueFilter
	for _, c := range children {
		c = rewriteValue(c)
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

func dedupeValue(children []*query.ValueFilter) []*query.ValueFilter {
	var out []*query.ValueFilter
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

func reorderValue(f *query.ValueFilter) {
	if f == nil || (f.Kind != query.VFAnd && f.Kind != query.VFOr) {
		return
	}
	for _, c := range f.Children {
		reorderValue(c)
	}
	sort.SliceStable(f.Children, func(i, j int) bool {
		return valueFilterCost(f.Children[i]) < valueFilterCost(f.Children[j])
	})
}

// Value runs the fixed-point rewrite sequence over a ValueFilter tree.
// ValueFilter has no With/Without pair to collapse through Not, so Not-
// simplification here is limited to double-negation elimination.
func Value(f *query.ValueFilter) *query.ValueFilter {
	for {
		next := rewriteValue(f)
		if reflect.DeepEqual(next, f) {
			f = next
			break
		}
		f = next
	}
	reorderValue(f)
	return f
}
