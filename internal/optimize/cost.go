// Package optimize rewrites a query.Query into an equivalent but cheaper
// form before the executor ever walks it (spec §4.4). Every pass here is a
// fixed, non-speculative local rewrite: flatten, dedupe, singleton-
// normalize, Not-simplify, empty-fold, required-type hoisting, and a
// cost-based reorder. Running the optimizer twice on its own output is a
// no-op (spec §4.4: "idempotent").
package optimize

import "github.com/brightgate-labs/reactor/internal/query"

// AvgEntitiesPerDevice and AvgDevicesPerGroup/Floe are the constants the
// published cost table uses to price a HasEntity/AllEntities or
// HasDevice/AllDevices node relative to its inner predicate's own cost
// (spec §4.4 step 7).
const (
	AvgEntitiesPerDevice  = 8
	AvgDevicesPerGroup    = 8
	AvgDevicesPerFloe     = 8
	costConditionValue    = 15
	costNameMatchesInfinite = 1 << 30 // sorts to the end without an actual infinity
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// deviceFilterCost implements the published table for DeviceFilter nodes
// (spec §4.4 step 7).
func deviceFilterCost(f *query.DeviceFilter) int {
	if f == nil {
		return 0
	}
	switch f.Kind {
	case query.DFAll, query.DFAny:
		total := 1
		for _, c := range f.Children {
			total += deviceFilterCost(c)
		}
		return total
	case query.DFNot:
		return 1 + deviceFilterCost(f.Child)
	case query.DFID, query.DFGroup, query.DFZone, query.DFOwner, query.DFEntityCount, query.DFLastUpdate:
		return 1
	case query.DFNameEquals:
		return maxInt(len(f.Name), 5)
	case query.DFNameMatches:
		return costNameMatchesInfinite
	case query.DFHasAll:
		return maxInt(len(f.HasAllTypes), 2)
	case query.DFHasEntity, query.DFAllEntities:
		return AvgEntitiesPerDevice * entityFilterCost(f.EntityPred)
	}
	return 1
}

// entityFilterCost implements the published table for EntityFilter nodes.
func entityFilterCost(f *query.EntityFilter) int {
	if f == nil {
		return 0
	}
	switch f.Kind {
	case query.EFAll, query.EFAny:
		total := 1
		for _, c := range f.Children {
			total += entityFilterCost(c)
		}
		return total
	case query.EFNot:
		return 1 + entityFilterCost(f.Child)
	case query.EFID, query.EFComponentCount, query.EFLastUpdate:
		return 1
	case query.EFHasAll, query.EFHasAny:
		n := maxInt(len(f.HasAllTypes), len(f.HasAnyTypes))
		return maxInt(n, 2)
	case query.EFTypeFilter:
		return typeFilterCost(f.TypeFilter)
	case query.EFValueFilter:
		return valueFilterCost(f.ValueFilter)
	}
	return 1
}

// typeFilterCost prices TypeFilter nodes: bare With/Without is the "bit
// check" literal (cost 1); And/Or/Not compose the same as device/entity
// filters.
func typeFilterCost(f *query.TypeFilter) int {
	if f == nil {
		return 0
	}
	switch f.Kind {
	case query.TFWith, query.TFWithout:
		return 1
	case query.TFAnd, query.TFOr:
		total := 1
		for _, c := range f.Children {
			total += typeFilterCost(c)
		}
		return total
	case query.TFNot:
		return 1 + typeFilterCost(f.Child)
	}
	return 1
}

// valueFilterCost prices ValueFilter nodes: a bare If is the published
// "value Condition" cost of 15, since it requires resolving and comparing
// an actual component value rather than a bit check.
func valueFilterCost(f *query.ValueFilter) int {
	if f == nil {
		return 0
	}
	switch f.Kind {
	case query.VFIf:
		return costConditionValue
	case query.VFAnd, query.VFOr:
		total := 1
		for _, c := range f.Children {
			total += valueFilterCost(c)
		}
		return total
	case query.VFNot:
		return 1 + valueFilterCost(f.Child)
	}
	return 1
}

// groupFilterCost prices GroupFilter nodes.
func groupFilterCost(f *query.GroupFilter) int {
	if f == nil {
		return 0
	}
	switch f.Kind {
	case query.GFAll, query.GFAny:
		total := 1
		for _, c := range f.Children {
			total += groupFilterCost(c)
		}
		return total
	case query.GFNot:
		return 1 + groupFilterCost(f.Child)
	case query.GFID:
		return 1
	case query.GFNameEquals:
		return maxInt(len(f.Name), 5)
	case query.GFNameMatches:
		return costNameMatchesInfinite
	case query.GFHasDevice, query.GFAllDevices:
		return AvgDevicesPerGroup * deviceFilterCost(f.DevicePred)
	}
	return 1
}

// floeFilterCost prices FloeFilter nodes.
func floeFilterCost(f *query.FloeFilter) int {
	if f == nil {
		return 0
	}
	switch f.Kind {
	case query.FFAll, query.FFAny:
		total := 1
		for _, c := range f.Children {
			total += floeFilterCost(c)
		}
		return total
	case query.FFNot:
		return 1 + floeFilterCost(f.Child)
	case query.FFID:
		return 1
	case query.FFHasDevice, query.FFAllDevices:
		return AvgDevicesPerFloe * deviceFilterCost(f.DevicePred)
	}
	return 1
}
