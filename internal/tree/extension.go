package tree

import "github.com/brightgate-labs/reactor/internal/component"

// Sink is the outbound write surface the tree drives for a Set action
// (spec §6 "Outbound" table). An extension owns exactly one Sink; only the
// engine task ever writes to it (spec §5).
type Sink interface {
	StartTransaction(did DeviceID) error
	SelectEntity(idx EntityIndex) error
	WriteComponent(tag component.ComponentType, payload component.Component) error
	DeselectEntity() error
	EndTransaction() error
	Flush() error
}

// Extension ("floe") is an external registrar of devices (spec §3).
type Extension struct {
	id        string
	sink      Sink
	deviceIDs map[DeviceID]struct{}
}

// ID returns the extension's persistent identifier.
func (x *Extension) ID() string { return x.id }

// Sink returns the extension's outbound write surface (spec §4.5 Set).
func (x *Extension) Sink() Sink { return x.sink }

// DeviceIDs returns the devices this extension currently owns.
func (x *Extension) DeviceIDs() []DeviceID {
	out := make([]DeviceID, 0, len(x.deviceIDs))
	for d := range x.deviceIDs {
		out = append(out, d)
	}
	return out
}
