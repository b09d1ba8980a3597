// Package tree implements the in-memory device tree (spec §3, §4.2): the
// owner of floes/extensions, devices, entities, and groups/zones, with
// generational ids and presence bitmaps.
//
// A Tree is owned by exactly one goroutine — the engine task (spec §5). It
// takes no internal locks; callers must not share a Tree across goroutines
// without their own synchronization.
package tree

import (
	"strings"
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/corerr"
)

// MaxEmptyDeviceSlots bounds eager slot reuse (spec §3 Lifecycle, §4.2):
// recycle only once free slots exceed this threshold.
const MaxEmptyDeviceSlots = 10

// MaxEmptyZoneSlots is the zone-layer analog of MaxEmptyDeviceSlots.
const MaxEmptyZoneSlots = 10

// MaxEmptyGroupSlots is the group-layer analog of MaxEmptyDeviceSlots.
const MaxEmptyGroupSlots = 10

// Tree is the in-core device tree.
type Tree struct {
	emit Emitter
	now  func() time.Time

	devices    []*Device
	deviceGen  []uint32 // per-slot current generation, tracked even when free

	groups   []*Group
	groupGen []uint32

	zones   []*Zone
	zoneGen []uint32

	extensions []*Extension // nil entry = free slot
	extByID    map[string]ExtensionIndex
}

// Option configures a new Tree.
type Option func(*Tree)

// WithEmitter installs the dispatcher (or any Emitter) as the tree's event
// sink. Without one, events are discarded.
func WithEmitter(e Emitter) Option {
	return func(t *Tree) { t.emit = e }
}

// WithClock overrides the tree's notion of "now", for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// New constructs an empty Tree.
func New(opts ...Option) *Tree {
	t := &Tree{
		emit:    nullEmitter{},
		now:     time.Now,
		extByID: make(map[string]ExtensionIndex),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetEmitter rewires the tree's event sink after construction (the engine
// constructs the tree before the dispatcher that will subscribe to it).
func (t *Tree) SetEmitter(e Emitter) { t.emit = e }

// Now returns the tree's notion of the current time, honoring WithClock.
// Callers outside the package (the executor, dispatcher) use this instead of
// time.Now() directly so tests that install a fixed clock stay deterministic.
func (t *Tree) Now() time.Time { return t.now() }

func (t *Tree) emitEvent(ev Event) {
	ev.Time = t.now()
	t.emit.Emit(ev)
}

// --- device id validity (spec invariant 1) ---

// isDeviceLive reports whether did's slot is occupied and the generation
// matches — the sole definition of "dereferences to a device" (invariant 1).
func (t *Tree) isDeviceLive(did DeviceID) bool {
	slot, gen := did.Slot(), did.Generation()
	return int(slot) < len(t.devices) && t.devices[slot] != nil && t.deviceGen[slot] == gen
}

// Device resolves a DeviceID, failing with StaleReference/NotFound per
// invariant 1.
func (t *Tree) Device(did DeviceID) (*Device, error) {
	slot := did.Slot()
	if int(slot) >= len(t.devices) || t.devices[slot] == nil {
		return nil, corerr.NotFound("device", did)
	}
	if t.deviceGen[slot] != did.Generation() {
		return nil, corerr.StaleReference("device", did)
	}
	return t.devices[slot], nil
}

// IterDevices iterates every live device with its current id.
func (t *Tree) IterDevices(fn func(DeviceID, *Device) bool) {
	for slot, d := range t.devices {
		if d == nil {
			continue
		}
		if !fn(NewDeviceID(uint32(slot), t.deviceGen[slot]), d) {
			return
		}
	}
}

// --- extensions ---

// AttachExtension reuses an empty slot or appends, binding owner_ref on all
// devices whose persistent owner id matches (spec §4.2).
func (t *Tree) AttachExtension(id string, sink Sink) (ExtensionIndex, error) {
	if _, ok := t.extByID[id]; ok {
		return 0, corerr.AlreadyAttached(id)
	}

	var idx ExtensionIndex = -1
	for i, x := range t.extensions {
		if x == nil {
			idx = ExtensionIndex(i)
			break
		}
	}
	ext := &Extension{id: id, sink: sink, deviceIDs: make(map[DeviceID]struct{})}
	if idx == -1 {
		idx = ExtensionIndex(len(t.extensions))
		t.extensions = append(t.extensions, ext)
	} else {
		t.extensions[idx] = ext
	}
	t.extByID[id] = idx

	t.IterDevices(func(did DeviceID, d *Device) bool {
		if d.ownerID == id {
			ref := idx
			d.ownerRef = &ref
			ext.deviceIDs[did] = struct{}{}
		}
		return true
	})

	t.emitEvent(Event{Kind: EvExtAttached, Extension: idx, Name: id})
	return idx, nil
}

// DetachExtension clears owner_ref on owned devices and frees the slot.
func (t *Tree) DetachExtension(idx ExtensionIndex) error {
	ext, err := t.extension(idx)
	if err != nil {
		return err
	}
	for did := range ext.deviceIDs {
		if d, derr := t.Device(did); derr == nil {
			d.ownerRef = nil
		}
	}
	delete(t.extByID, ext.id)
	t.extensions[idx] = nil
	t.emitEvent(Event{Kind: EvExtDetached, Extension: idx, Name: ext.id})
	return nil
}

func (t *Tree) extension(idx ExtensionIndex) (*Extension, error) {
	if idx < 0 || int(idx) >= len(t.extensions) || t.extensions[idx] == nil {
		return nil, corerr.NotFound("extension", idx)
	}
	return t.extensions[idx], nil
}

// Extension resolves a live ExtensionIndex to its record.
func (t *Tree) Extension(idx ExtensionIndex) (*Extension, error) { return t.extension(idx) }

// ExtensionByID resolves a persistent extension id to a live index.
func (t *Tree) ExtensionByID(id string) (ExtensionIndex, bool) {
	idx, ok := t.extByID[id]
	return idx, ok
}

// IterExtensions walks every currently attached extension in slot order,
// stopping early if fn returns false.
func (t *Tree) IterExtensions(fn func(ExtensionIndex, *Extension) bool) {
	for i, x := range t.extensions {
		if x == nil {
			continue
		}
		if !fn(ExtensionIndex(i), x) {
			return
		}
	}
}

// --- devices ---

// CreateDevice mints a new DeviceID, recycling a free slot only once the
// free count exceeds MaxEmptyDeviceSlots (spec §3 Lifecycle, §4.2).
func (t *Tree) CreateDevice(name, ownerID string) DeviceID {
	freeCount, freeIdx := 0, -1
	for i, d := range t.devices {
		if d == nil {
			freeCount++
			if freeIdx == -1 {
				freeIdx = i
			}
		}
	}

	var slot uint32
	var gen uint32
	if freeCount > MaxEmptyDeviceSlots && freeIdx != -1 {
		slot = uint32(freeIdx)
		t.deviceGen[slot]++
		gen = t.deviceGen[slot]
	} else {
		slot = uint32(len(t.devices))
		t.devices = append(t.devices, nil)
		t.deviceGen = append(t.deviceGen, 0)
		gen = 0
	}

	dev := newDevice(name, ownerID, gen, t.now())
	t.devices[slot] = dev

	did := NewDeviceID(slot, gen)
	if ref, ok := t.extByID[ownerID]; ok {
		r := ref
		dev.ownerRef = &r
		t.extensions[ref].deviceIDs[did] = struct{}{}
	}

	t.emitEvent(Event{Kind: EvDeviceCreated, Device: did, Name: name})
	return did
}

// DeleteDevice tombstones a device: emits device_deleted, then frees the
// slot (spec §4.2).
func (t *Tree) DeleteDevice(did DeviceID) error {
	dev, err := t.Device(did)
	if err != nil {
		return err
	}

	t.emitEvent(Event{Kind: EvDeviceDeleted, Device: did, Name: dev.name})

	for gid := range dev.groups {
		if g := t.groupOrNil(gid); g != nil {
			delete(g.devices, did)
		}
	}
	for zid := range dev.zones {
		if z := t.zoneOrNil(zid); z != nil {
			delete(z.devices, did)
		}
	}
	if dev.ownerRef != nil {
		if ext := t.extensions[*dev.ownerRef]; ext != nil {
			delete(ext.deviceIDs, did)
		}
	}

	t.devices[did.Slot()] = nil
	return nil
}

// RenameDevice sets a device's display name and emits device_renamed.
func (t *Tree) RenameDevice(did DeviceID, name string) error {
	dev, err := t.Device(did)
	if err != nil {
		return err
	}
	dev.name = name
	dev.lastUpdate = t.now()
	t.emitEvent(Event{Kind: EvDeviceRenamed, Device: did, Name: name})
	return nil
}

// RegisterEntity appends a new entity to a device (spec §4.2).
func (t *Tree) RegisterEntity(did DeviceID, entityID string) (EntityIndex, error) {
	if len(entityID) == 0 || len(entityID) > MaxEntityIDBytes {
		return 0, corerr.InvalidEntityID(entityID)
	}
	dev, err := t.Device(did)
	if err != nil {
		return 0, err
	}
	if _, ok := dev.entityIndex[entityID]; ok {
		return 0, corerr.DuplicateEntityID(entityID)
	}

	idx := EntityIndex(len(dev.entities))
	dev.entities = append(dev.entities, newEntity(entityID, t.now()))
	dev.entityIndex[entityID] = idx

	t.emitEvent(Event{Kind: EvEntityRegistered, Device: did, Entity: idx, EntityID: entityID})
	return idx, nil
}

// PutComponent introduces or replaces a component, setting the device
// presence bit on first introduction (spec §4.2).
func (t *Tree) PutComponent(did DeviceID, eidx EntityIndex, c component.Component) error {
	dev, err := t.Device(did)
	if err != nil {
		return err
	}
	ent, ok := dev.Entity(eidx)
	if !ok {
		return corerr.NotFound("entity", eidx)
	}

	now := t.now()
	isNew := ent.put(c, now)
	if isNew {
		dev.presence.set(c.Type())
	}
	dev.lastUpdate = now

	t.emitEvent(Event{Kind: EvComponentPut, Device: did, Entity: eidx, EntityID: ent.id, Component: c.Type(), Value: c})
	return nil
}

// SetComponent updates an existing component of the same type. Fails if the
// type is absent (spec §4.2).
func (t *Tree) SetComponent(did DeviceID, eidx EntityIndex, c component.Component) error {
	dev, err := t.Device(did)
	if err != nil {
		return err
	}
	ent, ok := dev.Entity(eidx)
	if !ok {
		return corerr.NotFound("entity", eidx)
	}
	if !ent.set(c, t.now()) {
		return corerr.NotFound("component", c.Type())
	}
	dev.lastUpdate = t.now()

	t.emitEvent(Event{Kind: EvComponentSet, Device: did, Entity: eidx, EntityID: ent.id, Component: c.Type(), Value: c})
	return nil
}

// RemoveComponent deletes a component from an entity, clearing the device
// presence bit if this was the last entity to carry the type (SPEC_FULL
// supplement 6, DESIGN.md Open Question 1: this tree clears eagerly).
func (t *Tree) RemoveComponent(did DeviceID, eidx EntityIndex, ct component.ComponentType) error {
	dev, err := t.Device(did)
	if err != nil {
		return err
	}
	ent, ok := dev.Entity(eidx)
	if !ok {
		return corerr.NotFound("entity", eidx)
	}
	if !ent.remove(ct, t.now()) {
		return corerr.NotFound("component", ct)
	}
	dev.recomputePresence(ct)
	dev.lastUpdate = t.now()

	t.emitEvent(Event{Kind: EvComponentRemoved, Device: did, Entity: eidx, EntityID: ent.id, Component: ct})
	return nil
}

func (t *Tree) groupOrNil(gid GroupID) *Group {
	slot := gid.Slot()
	if int(slot) >= len(t.groups) || t.groups[slot] == nil || t.groupGen[slot] != gid.Generation() {
		return nil
	}
	return t.groups[slot]
}

func (t *Tree) zoneOrNil(zid ZoneID) *Zone {
	slot := zid.Slot()
	if int(slot) >= len(t.zones) || t.zones[slot] == nil || t.zoneGen[slot] != zid.Generation() {
		return nil
	}
	return t.zones[slot]
}

// --- groups ---

// Group resolves a GroupID.
func (t *Tree) Group(gid GroupID) (*Group, error) {
	if g := t.groupOrNil(gid); g != nil {
		return g, nil
	}
	slot := gid.Slot()
	if int(slot) < len(t.groups) && t.groups[slot] != nil {
		return nil, corerr.StaleReference("group", gid)
	}
	return nil, corerr.NotFound("group", gid)
}

// IterGroups iterates every live group with its current id.
func (t *Tree) IterGroups(fn func(GroupID, *Group) bool) {
	for slot, g := range t.groups {
		if g == nil {
			continue
		}
		if !fn(NewGroupID(uint32(slot), t.groupGen[slot]), g) {
			return
		}
	}
}

// CreateGroup mints a new GroupID with the same bounded-recycle policy as
// CreateDevice.
func (t *Tree) CreateGroup(name string) GroupID {
	slot, gen := allocSlot(len(t.groups), func(i int) bool { return t.groups[i] == nil }, &t.groupGen, MaxEmptyGroupSlots)
	if int(slot) == len(t.groups) {
		t.groups = append(t.groups, nil)
	}
	t.groups[slot] = newGroup(name, gen)
	gid := NewGroupID(slot, gen)
	t.emitEvent(Event{Kind: EvGroupCreated, Group: gid, Name: name})
	return gid
}

// DeleteGroup removes a group, clearing membership on the device side too
// (invariant 4).
func (t *Tree) DeleteGroup(gid GroupID) error {
	g, err := t.Group(gid)
	if err != nil {
		return err
	}
	t.emitEvent(Event{Kind: EvGroupDeleted, Group: gid, Name: g.name})
	for did := range g.devices {
		if d, derr := t.Device(did); derr == nil {
			delete(d.groups, gid)
		}
	}
	t.groups[gid.Slot()] = nil
	return nil
}

// RenameGroup sets a group's display name.
func (t *Tree) RenameGroup(gid GroupID, name string) error {
	g, err := t.Group(gid)
	if err != nil {
		return err
	}
	g.name = name
	t.emitEvent(Event{Kind: EvGroupRenamed, Group: gid, Name: name})
	return nil
}

// GroupAddDevice adds d to g with two-sided consistency (invariant 4).
func (t *Tree) GroupAddDevice(gid GroupID, did DeviceID) error {
	g, err := t.Group(gid)
	if err != nil {
		return err
	}
	d, err := t.Device(did)
	if err != nil {
		return err
	}
	g.devices[did] = struct{}{}
	d.groups[gid] = struct{}{}
	t.emitEvent(Event{Kind: EvGroupDeviceAdded, Group: gid, Device: did})
	return nil
}

// GroupRemoveDevice removes d from g with two-sided consistency.
func (t *Tree) GroupRemoveDevice(gid GroupID, did DeviceID) error {
	g, err := t.Group(gid)
	if err != nil {
		return err
	}
	d, err := t.Device(did)
	if err != nil {
		return err
	}
	delete(g.devices, did)
	delete(d.groups, gid)
	t.emitEvent(Event{Kind: EvGroupDeviceRemoved, Group: gid, Device: did})
	return nil
}

// --- zones (mirrors groups, plus Disabled) ---

// Zone resolves a ZoneID.
func (t *Tree) Zone(zid ZoneID) (*Zone, error) {
	if z := t.zoneOrNil(zid); z != nil {
		return z, nil
	}
	slot := zid.Slot()
	if int(slot) < len(t.zones) && t.zones[slot] != nil {
		return nil, corerr.StaleReference("zone", zid)
	}
	return nil, corerr.NotFound("zone", zid)
}

// IterZones iterates every live zone with its current id.
func (t *Tree) IterZones(fn func(ZoneID, *Zone) bool) {
	for slot, z := range t.zones {
		if z == nil {
			continue
		}
		if !fn(NewZoneID(uint32(slot), t.zoneGen[slot]), z) {
			return
		}
	}
}

// CreateZone mints a new ZoneID with the same bounded-recycle policy as
// CreateDevice.
func (t *Tree) CreateZone(name string) ZoneID {
	slot, gen := allocSlot(len(t.zones), func(i int) bool { return t.zones[i] == nil }, &t.zoneGen, MaxEmptyZoneSlots)
	if int(slot) == len(t.zones) {
		t.zones = append(t.zones, nil)
	}
	t.zones[slot] = newZone(name, gen)
	zid := NewZoneID(slot, gen)
	t.emitEvent(Event{Kind: EvZoneCreated, Zone: zid, Name: name})
	return zid
}

// DeleteZone removes a zone, clearing membership on the device side too.
func (t *Tree) DeleteZone(zid ZoneID) error {
	z, err := t.Zone(zid)
	if err != nil {
		return err
	}
	t.emitEvent(Event{Kind: EvZoneDeleted, Zone: zid, Name: z.name})
	for did := range z.devices {
		if d, derr := t.Device(did); derr == nil {
			delete(d.zones, zid)
		}
	}
	t.zones[zid.Slot()] = nil
	return nil
}

// RenameZone sets a zone's display name.
func (t *Tree) RenameZone(zid ZoneID, name string) error {
	z, err := t.Zone(zid)
	if err != nil {
		return err
	}
	z.name = name
	t.emitEvent(Event{Kind: EvZoneRenamed, Zone: zid, Name: name})
	return nil
}

// SetZoneDisabled toggles a zone's disabled flag (spec §6 zones file key).
func (t *Tree) SetZoneDisabled(zid ZoneID, disabled bool) error {
	z, err := t.Zone(zid)
	if err != nil {
		return err
	}
	z.disabled = disabled
	return nil
}

// ZoneAddDevice adds d to z with two-sided consistency.
func (t *Tree) ZoneAddDevice(zid ZoneID, did DeviceID) error {
	z, err := t.Zone(zid)
	if err != nil {
		return err
	}
	d, err := t.Device(did)
	if err != nil {
		return err
	}
	z.devices[did] = struct{}{}
	d.zones[zid] = struct{}{}
	t.emitEvent(Event{Kind: EvZoneDeviceAdded, Zone: zid, Device: did})
	return nil
}

// ZoneRemoveDevice removes d from z with two-sided consistency.
func (t *Tree) ZoneRemoveDevice(zid ZoneID, did DeviceID) error {
	z, err := t.Zone(zid)
	if err != nil {
		return err
	}
	d, err := t.Device(did)
	if err != nil {
		return err
	}
	delete(z.devices, did)
	delete(d.zones, zid)
	t.emitEvent(Event{Kind: EvZoneDeviceRemoved, Zone: zid, Device: did})
	return nil
}

// allocSlot finds a free slot in a generational slot table, recycling it
// only once more than maxEmpty slots are free (the same bounded-reuse
// policy CreateDevice applies, generalized for groups/zones).
func allocSlot(n int, isFree func(int) bool, gens *[]uint32, maxEmpty int) (slot uint32, gen uint32) {
	freeCount, freeIdx := 0, -1
	for i := 0; i < n; i++ {
		if isFree(i) {
			freeCount++
			if freeIdx == -1 {
				freeIdx = i
			}
		}
	}
	if freeCount > maxEmpty && freeIdx != -1 {
		(*gens)[freeIdx]++
		return uint32(freeIdx), (*gens)[freeIdx]
	}
	*gens = append(*gens, 0)
	return uint32(n), 0
}

// NormalizeName trims and collapses whitespace the way a user-entered
// device/group/zone name is expected to arrive cleaned up before storage.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
