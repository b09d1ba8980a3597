package optimize

import (
	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/query"
)

// Query runs the full fixed-rewrite sequence over q and returns a new,
// equivalent, cheaper Query (spec §4.4). It is idempotent: Query(Query(q))
// produces the same tree as Query(q).
func Query(q *query.Query) *query.Query {
	if q == nil {
		return nil
	}
	out := *q
	out.DeviceFilter = Device(q.DeviceFilter)
	out.EntityFilter = Entity(q.EntityFilter)
	out.GroupFilter = Group(q.GroupFilter)
	out.FloeFilter = Floe(q.FloeFilter)

	hoistRequiredType(&out)

	// A second full pass folds the just-installed HasAll leaves into any
	// pre-existing device/entity filter and re-sorts by cost, since the
	// hoist above bypasses the ordinary flatten/reorder path.
	out.DeviceFilter = Device(out.DeviceFilter)
	out.EntityFilter = Entity(out.EntityFilter)
	return &out
}

// hoistRequiredType implements spec §4.4 step 6. The query action vocabulary
// (spec §4.3) has no separate "introduce new type" action distinct from
// Set — set_component already requires the type to pre-exist (spec §4.2)
// — so every action against a Components(T) target requires T, not only a
// subset of actions.
func hoistRequiredType(q *query.Query) {
	if q.Target.Kind != query.TargetComponents {
		return
	}
	t := q.Target.ComponentType

	deviceForced := q.ForcedDeviceTypes()
	if !containsType(deviceForced, t) {
		q.DeviceFilter = andDevice(q.DeviceFilter, query.HasAllDevice(t))
	}

	entityForced := q.ForcedEntityTypes()
	if !containsType(entityForced, t) {
		q.EntityFilter = andEntity(q.EntityFilter, query.HasAllEntity(t))
	}

	hoistOrBranchesDevice(q.DeviceFilter)
	hoistOrBranchesEntity(q.EntityFilter)
}

func containsType(types []component.ComponentType, t component.ComponentType) bool {
	for _, existing := range types {
		if existing == t {
			return true
		}
	}
	return false
}

// andDevice conjoins extra onto f, or returns extra alone if f is absent.
func andDevice(f *query.DeviceFilter, extra *query.DeviceFilter) *query.DeviceFilter {
	if f == nil {
		return extra
	}
	return query.AllDevice(f, extra)
}

// andEntity conjoins extra onto f, or returns extra alone if f is absent.
func andEntity(f *query.EntityFilter, extra *query.EntityFilter) *query.EntityFilter {
	if f == nil {
		return extra
	}
	return query.AllEntity(f, extra)
}

// hoistOrBranchesDevice handles Or branches for required-type hoisting.
// Each Or child's own conjunctive forced types are collected and prepended
// into that child as a HasAll pre-check; the original leaves are left in
// place (the HasAll is a redundant but valid narrowing, not a replacement).
// No HasAny node is installed, neither at the Or node nor inside a branch.
func hoistOrBranchesDevice(f *query.DeviceFilter) {
	if f == nil {
		return
	}
	switch f.Kind {
	case query.DFAll:
		for _, c := range f.Children {
			hoistOrBranchesDevice(c)
		}
	case query.DFAny:
		for i, c := range f.Children {
			hoistOrBranchesDevice(c)
			var branchForced []component.ComponentType
			c.CollectForced(&branchForced)
			if len(branchForced) > 0 {
				f.Children[i] = query.AllDevice(query.HasAllDevice(branchForced...), c)
			}
		}
	case query.DFNot:
		hoistOrBranchesDevice(f.Child)
	case query.DFHasEntity, query.DFAllEntities:
		hoistOrBranchesEntity(f.EntityPred)
	}
}

// hoistOrBranchesEntity is the EntityFilter analog of hoistOrBranchesDevice.
func hoistOrBranchesEntity(f *query.EntityFilter) {
	if f == nil {
		return
	}
	switch f.Kind {
	case query.EFAll:
		for _, c := range f.Children {
			hoistOrBranchesEntity(c)
		}
	case query.EFAny:
		for i, c := range f.Children {
			hoistOrBranchesEntity(c)
			var branchForced []component.ComponentType
			c.CollectForced(&branchForced)
			if len(branchForced) > 0 {
				f.Children[i] = query.AllEntity(query.HasAllEntity(branchForced...), c)
			}
		}
	case query.EFNot:
		hoistOrBranchesEntity(f.Child)
	}
}
