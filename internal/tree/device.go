package tree

import (
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
)

const presenceWords = (int(component.MaxComponentTag) + 31) / 32

// presence is a fixed-size bit vector, one bit per component type (spec
// §3: "sized ceil(MAX_COMPONENT_TAG/32) 32-bit words").
type presence [presenceWords]uint32

func (p *presence) has(t component.ComponentType) bool {
	idx := uint32(t)
	return p[idx/32]&(1<<(idx%32)) != 0
}

func (p *presence) set(t component.ComponentType) {
	idx := uint32(t)
	p[idx/32] |= 1 << (idx % 32)
}

func (p *presence) clear(t component.ComponentType) {
	idx := uint32(t)
	p[idx/32] &^= 1 << (idx % 32)
}

// Device is the unit of ownership and addressing for entities (spec §3).
type Device struct {
	generation uint32
	name       string
	ownerID    string // persistent extension id this device belongs to
	ownerRef   *ExtensionIndex

	entities    []*Entity
	entityIndex map[string]EntityIndex

	groups map[GroupID]struct{}
	zones  map[ZoneID]struct{}

	presence   presence
	lastUpdate time.Time
}

func newDevice(name, ownerID string, generation uint32, now time.Time) *Device {
	return &Device{
		generation:  generation,
		name:        name,
		ownerID:     ownerID,
		entityIndex: make(map[string]EntityIndex),
		groups:      make(map[GroupID]struct{}),
		zones:       make(map[ZoneID]struct{}),
		lastUpdate:  now,
	}
}

// Name returns the device's current display name.
func (d *Device) Name() string { return d.name }

// OwnerID returns the persistent extension id that owns this device,
// regardless of whether that extension is currently attached.
func (d *Device) OwnerID() string { return d.ownerID }

// OwnerRef returns the live extension index, if the owning extension is
// currently attached (spec §3 invariant 5).
func (d *Device) OwnerRef() (ExtensionIndex, bool) {
	if d.ownerRef == nil {
		return 0, false
	}
	return *d.ownerRef, true
}

// LastUpdate returns the device's last component-touch time.
func (d *Device) LastUpdate() time.Time { return d.lastUpdate }

// EntityCount returns the number of entities registered on this device.
func (d *Device) EntityCount() int { return len(d.entities) }

// Entities iterates entities by EntityIndex order.
func (d *Device) Entities() []*Entity { return d.entities }

// Entity returns the entity at idx, if in range.
func (d *Device) Entity(idx EntityIndex) (*Entity, bool) {
	if idx < 0 || int(idx) >= len(d.entities) {
		return nil, false
	}
	return d.entities[idx], true
}

// EntityByID looks up an entity by its human id.
func (d *Device) EntityByID(id string) (*Entity, EntityIndex, bool) {
	idx, ok := d.entityIndex[id]
	if !ok {
		return nil, 0, false
	}
	return d.entities[idx], idx, true
}

// HasPresence reports the device-level presence bit for t (spec invariant
// 2). May be a false positive after RemoveComponent if the implementation
// defers clearing (spec §4.2, §9); this tree clears eagerly (DESIGN.md Open
// Question 1) so here it is exact.
func (d *Device) HasPresence(t component.ComponentType) bool {
	return d.presence.has(t)
}

// HasAllPresence reports whether every type in ts is present on the device.
func (d *Device) HasAllPresence(ts []component.ComponentType) bool {
	for _, t := range ts {
		if !d.presence.has(t) {
			return false
		}
	}
	return true
}

// recomputePresence rescans every entity for type t and sets or clears the
// device bit accordingly. Called after a removal that might have been the
// last holder of t (spec §4.2).
func (d *Device) recomputePresence(t component.ComponentType) {
	for _, e := range d.entities {
		if e.Has(t) {
			d.presence.set(t)
			return
		}
	}
	d.presence.clear(t)
}

// InGroup reports membership (spec invariant 4, device side).
func (d *Device) InGroup(g GroupID) bool {
	_, ok := d.groups[g]
	return ok
}

// InZone reports zone membership, the zone-layer analog of InGroup.
func (d *Device) InZone(z ZoneID) bool {
	_, ok := d.zones[z]
	return ok
}

// Groups returns the set of groups this device belongs to.
func (d *Device) Groups() []GroupID {
	out := make([]GroupID, 0, len(d.groups))
	for g := range d.groups {
		out = append(out, g)
	}
	return out
}

// Zones returns the set of zones this device belongs to.
func (d *Device) Zones() []ZoneID {
	out := make([]ZoneID, 0, len(d.zones))
	for z := range d.zones {
		out = append(out, z)
	}
	return out
}
