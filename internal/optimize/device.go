package optimize

import (
	"reflect"
	"sort"

	"github.com/brightgate-labs/reactor/internal/query"
)

// rewriteDevice applies flatten/dedupe/singleton/not-simplify/empty-fold to
// a single DeviceFilter node, recursing into children first (bottom-up, so
// a child simplification can enable a parent one on the same pass). It
// returns the rewritten node, or nil if the node folded away entirely
// (empty And/Or — spec §4.4 step 5, "drop filter").
func rewriteDevice(f *query.DeviceFilter) *query.DeviceFilter {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case query.DFAll, query.DFAny:
		children := flattenDevice(f.Kind, f.Children)
		children = dedupeDevice(children)
		if len(children) == 0 {
			return nil
		}
		if len(children) == 1 {
			return children[0]
		}
		return &query.DeviceFilter{Kind: f.Kind, Children: children}
	case query.DFNot:
		child := rewriteDevice(f.Child)
		if child == nil {
			return nil
		}
		if child.Kind == query.DFNot {
			return child.Child
		}
		return &query.DeviceFilter{Kind: query.DFNot, Child: child}
	case query.DFHasEntity, query.DFAllEntities:
		return &query.DeviceFilter{Kind: f.Kind, EntityPred: rewriteEntity(f.EntityPred)}
	default:
		return f
	}
}

func flattenDevice(kind query.DeviceFilterKind, children []*query.DeviceFilter) []*query.DeviceFilter {
	var out []*query.DeviceFilter
	for _, c := range children {
		c = rewriteDevice(c)
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

func dedupeDevice(children []*query.DeviceFilter) []*query.DeviceFilter {
	var out []*query.DeviceFilter
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

// reorderDevice sorts the children of an And/Or node ascending by cost,
// stable so equal-cost siblings keep their input order (spec §4.4 step 7).
func reorderDevice(f *query.DeviceFilter) {
	if f == nil {
		return
	}
	switch f.Kind {
	case query.DFAll, query.DFAny:
		for _, c := range f.Children {
			reorderDevice(c)
		}
		sort.SliceStable(f.Children, func(i, j int) bool {
			return deviceFilterCost(f.Children[i]) < deviceFilterCost(f.Children[j])
		})
	case query.DFNot:
		reorderDevice(f.Child)
	case query.DFHasEntity, query.DFAllEntities:
		reorderEntity(f.EntityPred)
	}
}

// Device runs the full fixed-point rewrite sequence over a DeviceFilter
// tree: repeated flatten/dedupe/singleton/not-simplify/empty-fold until no
// further change, then a single cost-based reorder pass (reordering cannot
// itself trigger another rewrite, so it runs once at the end).
func Device(f *query.DeviceFilter) *query.DeviceFilter {
	for {
		next := rewriteDevice(f)
		if reflect.DeepEqual(next, f) {
			f = next
			break
		}
		f = next
	}
	reorderDevice(f)
	return f
}
