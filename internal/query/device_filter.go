package query

import (
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// DeviceFilterKind selects which shape a DeviceFilter node takes.
type DeviceFilterKind int

const (
	DFAll DeviceFilterKind = iota
	DFAny
	DFNot
	DFID
	DFGroup
	DFZone
	DFOwner
	DFEntityCount
	DFLastUpdate
	DFNameEquals
	DFNameMatches
	DFHasAll
	DFHasEntity
	DFAllEntities
)

// DeviceFilter is the recursive predicate tree evaluated per device (spec
// §4.3).
type DeviceFilter struct {
	Kind DeviceFilterKind

	Children []*DeviceFilter // All, Any
	Child    *DeviceFilter   // Not

	ID             DeviceIDClause
	Group          GroupClause
	Zone           ZoneClause
	OwnerMatch     IDMatch
	Owner          string
	Owners         []string
	EntityCount    CmpClause
	LastUpdate     DurationClause
	Name           string // NameEquals
	Glob           string // NameMatches
	HasAllTypes    []component.ComponentType
	EntityPred     *EntityFilter // HasEntity, AllEntities
}

// AllDevice conjoins a set of DeviceFilter nodes.
func AllDevice(children ...*DeviceFilter) *DeviceFilter {
	return &DeviceFilter{Kind: DFAll, Children: children}
}

// AnyDevice disjoins a set of DeviceFilter nodes.
func AnyDevice(children ...*DeviceFilter) *DeviceFilter {
	return &DeviceFilter{Kind: DFAny, Children: children}
}

// NotDevice negates a DeviceFilter node.
func NotDevice(child *DeviceFilter) *DeviceFilter { return &DeviceFilter{Kind: DFNot, Child: child} }

// HasAllDevice requires device-level presence of every type in types.
func HasAllDevice(types ...component.ComponentType) *DeviceFilter {
	return &DeviceFilter{Kind: DFHasAll, HasAllTypes: types}
}

// HasEntityDevice requires at least one entity on the device to satisfy ef.
func HasEntityDevice(ef *EntityFilter) *DeviceFilter {
	return &DeviceFilter{Kind: DFHasEntity, EntityPred: ef}
}

// AllEntitiesDevice requires every entity on the device (there must be at
// least one) to satisfy ef.
func AllEntitiesDevice(ef *EntityFilter) *DeviceFilter {
	return &DeviceFilter{Kind: DFAllEntities, EntityPred: ef}
}

func (c GroupClause) eval(d *tree.Device) bool {
	switch c.Match {
	case GroupMemberOf:
		return d.InGroup(c.Group)
	case GroupMemberOfAny:
		for _, g := range c.Groups {
			if d.InGroup(g) {
				return true
			}
		}
		return false
	case GroupMemberOfAll:
		for _, g := range c.Groups {
			if !d.InGroup(g) {
				return false
			}
		}
		return true
	}
	return true
}

func (c ZoneClause) eval(d *tree.Device) bool {
	switch c.Match {
	case GroupMemberOf:
		return d.InZone(c.Zone)
	case GroupMemberOfAny:
		for _, z := range c.Zones {
			if d.InZone(z) {
				return true
			}
		}
		return false
	case GroupMemberOfAll:
		for _, z := range c.Zones {
			if !d.InZone(z) {
				return false
			}
		}
		return true
	}
	return true
}

func (f *DeviceFilter) ownerEval(owner string) bool {
	switch f.OwnerMatch {
	case IDIs:
		return owner == f.Owner
	case IDIn:
		for _, o := range f.Owners {
			if o == owner {
				return true
			}
		}
		return false
	}
	return true
}

// Eval reports whether d (identified by id) satisfies f as of now.
func (f *DeviceFilter) Eval(id tree.DeviceID, d *tree.Device, now time.Time) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case DFAll:
		for _, c := range f.Children {
			if !c.Eval(id, d, now) {
				return false
			}
		}
		return true
	case DFAny:
		for _, c := range f.Children {
			if c.Eval(id, d, now) {
				return true
			}
		}
		return len(f.Children) == 0
	case DFNot:
		return !f.Child.Eval(id, d, now)
	case DFID:
		return f.ID.eval(id)
	case DFGroup:
		return f.Group.eval(d)
	case DFZone:
		return f.Zone.eval(d)
	case DFOwner:
		return f.ownerEval(d.OwnerID())
	case DFEntityCount:
		return f.EntityCount.eval(d.EntityCount())
	case DFLastUpdate:
		return f.LastUpdate.eval(now, d.LastUpdate())
	case DFNameEquals:
		return d.Name() == f.Name
	case DFNameMatches:
		return NameMatches(f.Glob, d.Name())
	case DFHasAll:
		return d.HasAllPresence(f.HasAllTypes)
	case DFHasEntity:
		for _, e := range d.Entities() {
			if f.EntityPred.Eval(e, now) {
				return true
			}
		}
		return false
	case DFAllEntities:
		if d.EntityCount() == 0 {
			return false
		}
		for _, e := range d.Entities() {
			if !f.EntityPred.Eval(e, now) {
				return false
			}
		}
		return true
	}
	return true
}

// CollectForced walks f's conjunctive top-level (All recursion, bare
// HasAll, the whole of AllEntities) appending the component types any
// matching device must carry (spec §4.4 step 6).
func (f *DeviceFilter) CollectForced(out *[]component.ComponentType) {
	if f == nil {
		return
	}
	switch f.Kind {
	case DFAll:
		for _, c := range f.Children {
			c.CollectForced(out)
		}
	case DFHasAll:
		for _, t := range f.HasAllTypes {
			addType(out, t)
		}
	case DFAllEntities:
		f.EntityPred.CollectForced(out)
	}
}
