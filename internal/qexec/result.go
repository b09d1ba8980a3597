package qexec

import (
	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// EntityValue is one matched (device, entity) pair. Value is nil when the
// query's Target carries no component type (TargetEntities).
type EntityValue struct {
	Device   tree.DeviceID
	Entity   tree.EntityIndex
	EntityID string
	Value    component.Component
}

// EntitySnapshot is one entity's full component set, keyed by type.
type EntitySnapshot struct {
	EntityID   string
	Components map[component.ComponentType]component.Component
}

// DeviceSnapshot is one device's full entity set (spec §4.5 Snapshot).
type DeviceSnapshot struct {
	Device   tree.DeviceID
	Name     string
	Entities []EntitySnapshot
}

// Result is the one-shot executor's output. Which fields are populated
// depends on the query's Target and Action: every action sets Count;
// Get/GetAll fill FloeIDs, GroupIDs, ZoneIDs, DeviceIDs or Entities by
// target; GetAvg fills Aggregate/HasAggregate; Snapshot fills Snapshot; Set
// fills Written and Errors.
type Result struct {
	DeviceIDs []tree.DeviceID
	GroupIDs  []tree.GroupID
	ZoneIDs   []tree.ZoneID
	FloeIDs   []string
	Entities  []EntityValue

	Count int

	Aggregate    component.Component
	HasAggregate bool

	Snapshot []DeviceSnapshot

	// Written reports the devices Set actually delivered a transactional
	// write sequence to (owner_ref present). Devices skipped for lacking an
	// owner_ref (spec §4.5) are not included.
	Written []tree.DeviceID

	// Errors carries one corerr.Transport per failed Sink call. A device
	// whose StartTransaction fails is skipped and left out of Written; after
	// a later failure the sequence still runs through EndTransaction and
	// Flush, and the device stays in Written. No failure aborts the whole Set.
	Errors []error
}
