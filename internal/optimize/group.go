package optimize

import (
	"reflect"
	"sort"

	"github.com/brightgate-labs/reactor/internal/query"
)

func rewriteGroup(f *query.GroupFilter) *query.GroupFilter {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case query.GFAll, query.GFAny:
		children := flattenGroup(f.Kind, f.Children)
		children = dedupeGroup(children)
		if len(children) == 0 {
			return nil
		}
		if len(children) == 1 {
			return children[0]
		}
		return &query.GroupFilter{Kind: f.Kind, Children: children}
	case query.GFNot:
		child := rewriteGroup(f.Child)
		if child == nil {
			return nil
		}
		if child.Kind == query.GFNot {
			return child.Child
		}
		return &query.GroupFilter{Kind: query.GFNot, Child: child}
	case query.GFHasDevice, query.GFAllDevices:
		return &query.GroupFilter{Kind: f.Kind, DevicePred: Device(f.DevicePred)}
	default:
		return f
	}
}

func flattenGroup(kind query.GroupFilterKind, children []*query.GroupFilter) []*query.GroupFilter {
	var out []*query.GroupFilter
	for _, c := range children {
		c = rewriteGroup(c)
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

func dedupeGroup(children []*query.GroupFilter) []*query.GroupFilter {
	var out []*query.GroupFilter
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

func reorderGroup(f *query.GroupFilter) {
	if f == nil {
		return
	}
	switch f.Kind {
	case query.GFAll, query.GFAny:
		for _, c := range f.Children {
			reorderGroup(c)
		}
		sort.SliceStable(f.Children, func(i, j int) bool {
			return groupFilterCost(f.Children[i]) < groupFilterCost(f.Children[j])
		})
	case query.GFNot:
		reorderGroup(f.Child)
	case query.GFHasDevice, query.GFAllDevices:
		reorderDevice(f.DevicePred)
	}
}

// Group runs the fixed-point rewrite sequence over a GroupFilter tree.
func Group(f *query.GroupFilter) *query.GroupFilter {
	for {
		next := rewriteGroup(f)
		if reflect.DeepEqual(next, f) {
			f = next
			break
		}
		f = next
	}
	reorderGroup(f)
	return f
}
