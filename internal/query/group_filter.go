package query

import (
	"time"

	"github.com/brightgate-labs/reactor/internal/tree"
)

// GroupFilterKind selects which shape a GroupFilter node takes.
type GroupFilterKind int

const (
	GFAll GroupFilterKind = iota
	GFAny
	GFNot
	GFID
	GFNameEquals
	GFNameMatches
	GFHasDevice
	GFAllDevices
)

// GroupFilter is the recursive predicate tree evaluated per group (spec
// §4.3: "id-centric plus HasDevice/AllDevices(DeviceFilter) and
// combinators").
type GroupFilter struct {
	Kind GroupFilterKind

	Children []*GroupFilter
	Child    *GroupFilter

	ID         GroupIDClause
	Name       string
	Glob       string
	DevicePred *DeviceFilter
}

// AllGroup conjoins a set of GroupFilter nodes.
func AllGroup(children ...*GroupFilter) *GroupFilter {
	return &GroupFilter{Kind: GFAll, Children: children}
}

// AnyGroup disjoins a set of GroupFilter nodes.
func AnyGroup(children ...*GroupFilter) *GroupFilter {
	return &GroupFilter{Kind: GFAny, Children: children}
}

// NotGroup negates a GroupFilter node.
func NotGroup(child *GroupFilter) *GroupFilter { return &GroupFilter{Kind: GFNot, Child: child} }

// DeviceLookup resolves a member DeviceID to its tree.Device, for
// HasDevice/AllDevices evaluation (a group only stores member ids).
type DeviceLookup func(tree.DeviceID) (*tree.Device, bool)

// Eval reports whether g (identified by id) satisfies f as of now.
func (f *GroupFilter) Eval(id tree.GroupID, g *tree.Group, now time.Time, lookup DeviceLookup) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case GFAll:
		for _, c := range f.Children {
			if !c.Eval(id, g, now, lookup) {
				return false
			}
		}
		return true
	case GFAny:
		for _, c := range f.Children {
			if c.Eval(id, g, now, lookup) {
				return true
			}
		}
		return len(f.Children) == 0
	case GFNot:
		return !f.Child.Eval(id, g, now, lookup)
	case GFID:
		return f.ID.eval(id)
	case GFNameEquals:
		return g.Name() == f.Name
	case GFNameMatches:
		return NameMatches(f.Glob, g.Name())
	case GFHasDevice:
		for _, did := range g.Devices() {
			dev, ok := lookup(did)
			if ok && f.DevicePred.Eval(did, dev, now) {
				return true
			}
		}
		return false
	case GFAllDevices:
		devices := g.Devices()
		if len(devices) == 0 {
			return false
		}
		for _, did := range devices {
			dev, ok := lookup(did)
			if !ok || !f.DevicePred.Eval(did, dev, now) {
				return false
			}
		}
		return true
	}
	return true
}
