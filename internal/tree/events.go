package tree

import (
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
)

// EventKind is the closed set of mutation events the tree emits (spec §6,
// SPEC_FULL "Event vocabulary").
type EventKind int

const (
	EvComponentSet EventKind = iota
	EvComponentPut
	EvComponentRemoved
	EvDeviceCreated
	EvDeviceDeleted
	EvDeviceRenamed
	EvEntityRegistered
	EvGroupCreated
	EvGroupDeleted
	EvGroupRenamed
	EvGroupDeviceAdded
	EvGroupDeviceRemoved
	EvZoneCreated
	EvZoneDeleted
	EvZoneRenamed
	EvZoneDeviceAdded
	EvZoneDeviceRemoved
	EvExtAttached
	EvExtDetached
)

func (k EventKind) String() string {
	switch k {
	case EvComponentSet:
		return "component_set"
	case EvComponentPut:
		return "component_put"
	case EvComponentRemoved:
		return "component_removed"
	case EvDeviceCreated:
		return "device_created"
	case EvDeviceDeleted:
		return "device_deleted"
	case EvDeviceRenamed:
		return "device_renamed"
	case EvEntityRegistered:
		return "entity_registered"
	case EvGroupCreated:
		return "group_created"
	case EvGroupDeleted:
		return "group_deleted"
	case EvGroupRenamed:
		return "group_renamed"
	case EvGroupDeviceAdded:
		return "group_device_added"
	case EvGroupDeviceRemoved:
		return "group_device_removed"
	case EvZoneCreated:
		return "zone_created"
	case EvZoneDeleted:
		return "zone_deleted"
	case EvZoneRenamed:
		return "zone_renamed"
	case EvZoneDeviceAdded:
		return "zone_device_added"
	case EvZoneDeviceRemoved:
		return "zone_device_removed"
	case EvExtAttached:
		return "ext_attached"
	case EvExtDetached:
		return "ext_detached"
	}
	return "unknown"
}

// Event is the single typed mutation notification the tree emits after
// every state change (spec §4.2, §6). The dispatcher is the sole consumer.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Device    DeviceID
	Entity    EntityIndex
	EntityID  string
	Component component.ComponentType
	Value     component.Component
	Group     GroupID
	Zone      ZoneID
	Extension ExtensionIndex
	Name      string
}

// Emitter receives tree events. The dispatcher implements this (spec §4.6,
// §5: dispatch is atomic with the event that triggered it, because the
// engine task calls Emit synchronously from within the mutating method).
type Emitter interface {
	Emit(Event)
}

// nullEmitter discards events; used until the engine wires a real one.
type nullEmitter struct{}

func (nullEmitter) Emit(Event) {}
