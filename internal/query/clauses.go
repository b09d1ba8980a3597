package query

import (
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// IDMatch is how an id-shaped leaf filter narrows a single dimension: any
// value, exactly one value, or membership in a small set (spec §4.3).
type IDMatch int

const (
	IDAny IDMatch = iota
	IDIs
	IDIn
)

// DeviceIDClause narrows on a device's identity.
type DeviceIDClause struct {
	Match   IDMatch
	Device  tree.DeviceID
	Devices []tree.DeviceID
}

func (c DeviceIDClause) eval(id tree.DeviceID) bool {
	switch c.Match {
	case IDIs:
		return id == c.Device
	case IDIn:
		for _, d := range c.Devices {
			if d == id {
				return true
			}
		}
		return false
	}
	return true
}

// EntityIDClause narrows on an entity's persistent string id.
type EntityIDClause struct {
	Match IDMatch
	ID    string
	IDs   []string
}

func (c EntityIDClause) eval(id string) bool {
	switch c.Match {
	case IDIs:
		return id == c.ID
	case IDIn:
		for _, d := range c.IDs {
			if d == id {
				return true
			}
		}
		return false
	}
	return true
}

// GroupIDClause narrows on a group's identity.
type GroupIDClause struct {
	Match  IDMatch
	Group  tree.GroupID
	Groups []tree.GroupID
}

func (c GroupIDClause) eval(id tree.GroupID) bool {
	switch c.Match {
	case IDIs:
		return id == c.Group
	case IDIn:
		for _, g := range c.Groups {
			if g == id {
				return true
			}
		}
		return false
	}
	return true
}

// FloeIDClause narrows on an extension's persistent string id.
type FloeIDClause struct {
	Match IDMatch
	ID    string
	IDs   []string
}

func (c FloeIDClause) eval(id string) bool {
	switch c.Match {
	case IDIs:
		return id == c.ID
	case IDIn:
		for _, d := range c.IDs {
			if d == id {
				return true
			}
		}
		return false
	}
	return true
}

// GroupMembership describes how a DeviceFilter's Group leaf tests the
// device's group set: any, a member of one particular group, a member of
// any of a set, or a member of all of a set.
type GroupMembership int

const (
	GroupMemberAny GroupMembership = iota
	GroupMemberOf
	GroupMemberOfAny
	GroupMemberOfAll
)

// GroupClause narrows a DeviceFilter on group membership.
type GroupClause struct {
	Match  GroupMembership
	Group  tree.GroupID
	Groups []tree.GroupID
}

// ZoneClause narrows a DeviceFilter on zone membership, identical shape to
// GroupClause (spec §3 zone/group symmetry).
type ZoneClause struct {
	Match GroupMembership
	Zone  tree.ZoneID
	Zones []tree.ZoneID
}

// CmpClause compares an observed count against a fixed uint32 (spec §4.3
// "entity_count CmpOp u32", "component_count CmpOp u32").
type CmpClause struct {
	Op    component.CmpOp
	Value uint32
}

func (c CmpClause) eval(n int) bool {
	return component.EvalOrdered(c.Op, int64(n), int64(c.Value))
}

// DurationClause compares an entity/device's age (now - last update) against
// a fixed threshold (spec §4.3 "last_update CmpOp Duration").
type DurationClause struct {
	Op    component.CmpOp
	Value time.Duration
}

func (c DurationClause) eval(now, last time.Time) bool {
	age := now.Sub(last)
	return component.EvalOrdered(c.Op, int64(age), int64(c.Value))
}
