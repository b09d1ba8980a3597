package query

import (
	"time"

	"github.com/brightgate-labs/reactor/internal/tree"
)

// FloeFilterKind selects which shape a FloeFilter node takes.
type FloeFilterKind int

const (
	FFAll FloeFilterKind = iota
	FFAny
	FFNot
	FFID
	FFHasDevice
	FFAllDevices
)

// FloeFilter is the recursive predicate tree evaluated per extension (spec
// §4.3: "id-centric plus HasDevice/AllDevices(DeviceFilter) and
// combinators"). Extensions are identified by their persistent string id,
// not a display name, so unlike GroupFilter there is no NameEquals/
// NameMatches leaf.
type FloeFilter struct {
	Kind FloeFilterKind

	Children []*FloeFilter
	Child    *FloeFilter

	ID         FloeIDClause
	DevicePred *DeviceFilter
}

// AllFloe conjoins a set of FloeFilter nodes.
func AllFloe(children ...*FloeFilter) *FloeFilter { return &FloeFilter{Kind: FFAll, Children: children} }

// AnyFloe disjoins a set of FloeFilter nodes.
func AnyFloe(children ...*FloeFilter) *FloeFilter { return &FloeFilter{Kind: FFAny, Children: children} }

// NotFloe negates a FloeFilter node.
func NotFloe(child *FloeFilter) *FloeFilter { return &FloeFilter{Kind: FFNot, Child: child} }

// Eval reports whether x satisfies f as of now.
func (f *FloeFilter) Eval(x *tree.Extension, now time.Time, lookup DeviceLookup) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case FFAll:
		for _, c := range f.Children {
			if !c.Eval(x, now, lookup) {
				return false
			}
		}
		return true
	case FFAny:
		for _, c := range f.Children {
			if c.Eval(x, now, lookup) {
				return true
			}
		}
		return len(f.Children) == 0
	case FFNot:
		return !f.Child.Eval(x, now, lookup)
	case FFID:
		return f.ID.eval(x.ID())
	case FFHasDevice:
		for _, did := range x.DeviceIDs() {
			dev, ok := lookup(did)
			if ok && f.DevicePred.Eval(did, dev, now) {
				return true
			}
		}
		return false
	case FFAllDevices:
		devices := x.DeviceIDs()
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
