// Package dispatch implements watchers and observers (spec §4.7, §4.8): the
// standing subscriptions a Watch*/Observe* query establishes, their matched
// sets, and the hot-path handlers that keep those sets in sync with tree
// events while staying off the tree's mutating call path (spec §5: dispatch
// is synchronous with the mutation that triggered it).
package dispatch

import (
	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/subindex"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// UpdateKind names the shape of a watcher/observer notification.
type UpdateKind int

const (
	UpdateValue UpdateKind = iota
	UpdateAggregate
	UpdateEntityRegistered
	UpdateComponentPut
	UpdateDeviceCreated
	UpdateDeviceDeleted
	UpdateGroupMembershipChanged
	UpdateFloeAttached
	UpdateFloeDetached
)

// Update is the single notification shape every watcher/observer handler
// produces (spec §4.7 hot-path contracts, §4.8 structural events).
type Update struct {
	SubID     subindex.SubID
	Kind      UpdateKind
	Device    tree.DeviceID
	Entity    tree.EntityIndex
	EntityID  string
	Value     component.Component
	Aggregate component.Component
	Group     tree.GroupID
	Extension tree.ExtensionIndex
}

// Sender is the outbound surface a registered subscription delivers updates
// through — internal/clientmgr's per-client queue implements this.
type Sender interface {
	Send(Update)
}

// mentionedTypes walks the whole EntityFilter tree — not just its
// conjunctive positions, unlike CollectForced — collecting every component
// type named anywhere in it. Spec §4.7 subscribes to component_put for "any
// T' that appears in the entity type filter (expansion candidate)", which
// includes types reachable only through Or/Not branches: those can't be
// hoisted for narrowing, but they still identify a put that might flip the
// entity into (or out of) the matched set.
func mentionedTypes(f *query.EntityFilter) []component.ComponentType {
	var out []component.ComponentType
	walkEntityFilter(f, &out)
	return out
}

func walkEntityFilter(f *query.EntityFilter, out *[]component.ComponentType) {
	if f == nil {
		return
	}
	for _, c := range f.Children {
		walkEntityFilter(c, out)
	}
	walkEntityFilter(f.Child, out)
	walkTypeFilter(f.TypeFilter, out)
	walkValueFilter(f.ValueFilter, out)
	for _, t := range f.HasAllTypes {
		appendUnique(out, t)
	}
	for _, t := range f.HasAnyTypes {
		appendUnique(out, t)
	}
}

func walkTypeFilter(f *query.TypeFilter, out *[]component.ComponentType) {
	if f == nil {
		return
	}
	if f.Kind == query.TFWith || f.Kind == query.TFWithout {
		appendUnique(out, f.Type)
	}
	for _, c := range f.Children {
		walkTypeFilter(c, out)
	}
	walkTypeFilter(f.Child, out)
}

func walkValueFilter(f *query.ValueFilter, out *[]component.ComponentType) {
	if f == nil {
		return
	}
	if f.Kind == query.VFIf {
		appendUnique(out, f.Value.Type())
	}
	for _, c := range f.Children {
		walkValueFilter(c, out)
	}
	walkValueFilter(f.Child, out)
}

func appendUnique(out *[]component.ComponentType, t component.ComponentType) {
	for _, existing := range *out {
		if existing == t {
			return
		}
	}
	*out = append(*out, t)
}

// deviceFilterGroups collects the groups named by every group clause
// anywhere in a DeviceFilter tree (under All, Any and Not alike), for the
// group_device_added/group_deleted expansion subscriptions spec §4.7
// requires.
func deviceFilterGroups(f *query.DeviceFilter) []tree.GroupID {
	var out []tree.GroupID
	walkDeviceFilterGroups(f, &out)
	return out
}

func walkDeviceFilterGroups(f *query.DeviceFilter, out *[]tree.GroupID) {
	if f == nil {
		return
	}
	if f.Kind == query.DFGroup {
		switch f.Group.Match {
		case query.GroupMemberOf:
			*out = append(*out, f.Group.Group)
		case query.GroupMemberOfAny, query.GroupMemberOfAll:
			*out = append(*out, f.Group.Groups...)
		}
	}
	for _, c := range f.Children {
		walkDeviceFilterGroups(c, out)
	}
	walkDeviceFilterGroups(f.Child, out)
}

// deviceFilterZones mirrors deviceFilterGroups for the zone_device_added/
// zone_deleted expansion subscriptions (SPEC_FULL supplement 4: zones are
// "identical mechanics" to groups, so a watcher/observer pinning a zone must
// resynchronize the same way one pinning a group does).
func deviceFilterZones(f *query.DeviceFilter) []tree.ZoneID {
	var out []tree.ZoneID
	walkDeviceFilterZones(f, &out)
	return out
}

func walkDeviceFilterZones(f *query.DeviceFilter, out *[]tree.ZoneID) {
	if f == nil {
		return
	}
	if f.Kind == query.DFZone {
		switch f.Zone.Match {
		case query.GroupMemberOf:
			*out = append(*out, f.Zone.Zone)
		case query.GroupMemberOfAny, query.GroupMemberOfAll:
			*out = append(*out, f.Zone.Zones...)
		}
	}
	for _, c := range f.Children {
		walkDeviceFilterZones(c, out)
	}
	walkDeviceFilterZones(f.Child, out)
}
