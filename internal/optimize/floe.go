package optimize

import (
	"reflect"
	"sort"

	"github.com/brightgate-labs/reactor/internal/query"
)

func rewriteFloe(f *query.FloeFilter) *query.FloeFilter {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case query.FFAll, query.FFAny:
		children := flattenFloe(f.Kind, f.Children)
		children = dedupeFloe(children)
		if len(children) == 0 {
			return nil
		}
		if len(children) == 1 {
			return children[0]
		}
		return &query.FloeFilter{Kind: f.Kind, Children: children}
	case query.FFNot:
		child := rewriteFloe(f.Child)
		if child == nil {
			return nil
		}
		if child.Kind == query.FFNot {
			return child.Child
		}
		return &query.FloeFilter{Kind: query.FFNot, Child: child}
	case query.FFHasDevice, query.FFAllDevices:
		return &query.FloeFilter{Kind: f.Kind, DevicePred: Device(f.DevicePred)}
	default:
		return f
	}
}

func flattenFloe(kind query.FloeFilterKind, children []*query.FloeFilter) []*query.FloeFilter {
	var out []*query.FloeFilter
	for _, c := range children {
		c = rewriteFloe(c)
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

func dedupeFloe(children []*query.FloeFilter) []*query.FloeFilter {
	var out []*query.FloeFilter
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

func reorderFloe(f *query.FloeFilter) {
	if f == nil {
		return
	}
	switch f.Kind {
	case query.FFAll, query.FFAny:
		for _, c := range f.Children {
			reorderFloe(c)
		}
		sort.SliceStable(f.Children, func(i, j int) bool {
			return floeFilterCost(f.Children[i]) < floeFilterCost(f.Children[j])
		})
	case query.FFNot:
		reorderFloe(f.Child)
	case query.FFHasDevice, query.FFAllDevices:
		reorderDevice(f.DevicePred)
	}
}

// Floe runs the fixed-point rewrite sequence over a FloeFilter tree.
func Floe(f *query.FloeFilter) *query.FloeFilter {
	for {
		next := rewriteFloe(f)
		if reflect.DeepEqual(next, f) {
			f = next
			break
		}
		f = next
	}
	reorderFloe(f)
	return f
}
