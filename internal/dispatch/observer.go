package dispatch

import (
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/subindex"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// observer is a registered ObserveComponentPut/ObserveRegistered
// subscription. Its matched set is device-granular (spec §4.8): a device is
// "observed" once it satisfies the device/floe/group filters, independent of
// which entities it currently carries.
type observer struct {
	id             subindex.SubID
	q              *query.Query
	sender         Sender
	matchedDevices map[tree.DeviceID]struct{}

	// extDevices mirrors watcher.extDevices: ext_detached clears
	// ownership before the event reaches Emit, so the association must be
	// remembered at match time.
	extDevices map[tree.ExtensionIndex]map[tree.DeviceID]struct{}
}

func (o *observer) trackExt(xidx tree.ExtensionIndex, did tree.DeviceID) {
	devs, ok := o.extDevices[xidx]
	if !ok {
		devs = make(map[tree.DeviceID]struct{})
		o.extDevices[xidx] = devs
	}
	devs[did] = struct{}{}
}

// addDevice enters did into the matched set and installs its device/ext
// scoped subscriptions (spec §4.8: device_deleted, ext_detached
// contraction).
func (o *observer) addDevice(d *Dispatcher, did tree.DeviceID, dev *tree.Device) {
	if _, ok := o.matchedDevices[did]; ok {
		return
	}
	o.matchedDevices[did] = struct{}{}
	d.idx.AddDevice(did, o.id)
	if xidx, ok := dev.OwnerRef(); ok {
		d.idx.AddExt(xidx, o.id)
		o.trackExt(xidx, did)
	}
}

func (o *observer) removeDevice(did tree.DeviceID) {
	delete(o.matchedDevices, did)
}

// tryExpand recomputes whether did now satisfies the observer's device-level
// filters and, if so (and it was not already matched), adds it and reports
// true.
func (o *observer) tryExpand(d *Dispatcher, did tree.DeviceID) bool {
	if _, already := o.matchedDevices[did]; already {
		return false
	}
	dev, err := d.tr.Device(did)
	if err != nil {
		return false
	}
	if !deviceMatches(d.tr, o.q, did, dev, d.tr.Now(), d.lookup) {
		return false
	}
	o.addDevice(d, did, dev)
	return true
}

func (o *observer) handleEntityRegistered(d *Dispatcher, ev tree.Event) {
	if _, ok := o.matchedDevices[ev.Device]; !ok {
		if !o.tryExpand(d, ev.Device) {
			return
		}
	}
	if o.q.Action != query.ActionObserveRegistered {
		return
	}
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	e, ok := dev.Entity(ev.Entity)
	if !ok {
		return
	}
	if !o.q.EntityFilter.Eval(e, d.tr.Now()) {
		return
	}
	o.sender.Send(Update{
		SubID:    o.id,
		Kind:     UpdateEntityRegistered,
		Device:   ev.Device,
		Entity:   ev.Entity,
		EntityID: ev.EntityID,
	})
}

func (o *observer) handleComponentPut(d *Dispatcher, ev tree.Event) {
	if o.q.Action != query.ActionObserveComponentPut {
		return
	}
	if _, ok := o.matchedDevices[ev.Device]; !ok {
		if !o.tryExpand(d, ev.Device) {
			return
		}
	}
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	e, ok := dev.Entity(ev.Entity)
	if !ok {
		return
	}
	if !o.q.EntityFilter.Eval(e, d.tr.Now()) {
		return
	}
	o.sender.Send(Update{
		SubID:    o.id,
		Kind:     UpdateComponentPut,
		Device:   ev.Device,
		Entity:   ev.Entity,
		EntityID: e.ID(),
		Value:    ev.Value,
	})
}

// handleDeviceCreated and the handlers below maintain matchedDevices only:
// neither ObserveComponentPut nor ObserveRegistered names device/group/floe
// structural transitions as client-visible content (spec §4.8: "the
// ObserveComponentPut flavor emits on every put satisfying the filters;
// ObserveRegistered emits on entity registration only") — device_created,
// ext_attached, group_device_added/removed and group_deleted only expand or
// contract which devices' subsequent entity_registered/component_put events
// this observer will hear.
func (o *observer) handleDeviceCreated(d *Dispatcher, ev tree.Event) {
	o.tryExpand(d, ev.Device)
}

func (o *observer) handleDeviceDeleted(ev tree.Event) {
	o.removeDevice(ev.Device)
}

func (o *observer) handleExtAttached(d *Dispatcher, ev tree.Event) {
	x, err := d.tr.Extension(ev.Extension)
	if err != nil {
		return
	}
	for _, did := range x.DeviceIDs() {
		o.tryExpand(d, did)
	}
}

func (o *observer) handleExtDetached(ev tree.Event) {
	devs, ok := o.extDevices[ev.Extension]
	if !ok {
		return
	}
	for did := range devs {
		o.removeDevice(did)
	}
	delete(o.extDevices, ev.Extension)
}

func (o *observer) handleGroupDeviceAdded(d *Dispatcher, ev tree.Event) {
	o.tryExpand(d, ev.Device)
}

func (o *observer) handleGroupDeviceRemoved(d *Dispatcher, ev tree.Event) {
	if _, ok := o.matchedDevices[ev.Device]; !ok {
		return
	}
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	if deviceMatches(d.tr, o.q, ev.Device, dev, d.tr.Now(), d.lookup) {
		return
	}
	o.removeDevice(ev.Device)
}

// handleGroupDeleted mirrors watcher.handleGroupDeleted: contract every
// matched device that was a member of the deleted group, read from the
// group's still-live device list (DeleteGroup emits before clearing
// device-side membership).
func (o *observer) handleGroupDeleted(d *Dispatcher, ev tree.Event) {
	g, err := d.tr.Group(ev.Group)
	if err != nil {
		return
	}
	for _, did := range g.Devices() {
		o.removeDevice(did)
	}
}

func (o *observer) handleZoneDeviceAdded(d *Dispatcher, ev tree.Event) {
	o.tryExpand(d, ev.Device)
}

func (o *observer) handleZoneDeviceRemoved(d *Dispatcher, ev tree.Event) {
	if _, ok := o.matchedDevices[ev.Device]; !ok {
		return
	}
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	if deviceMatches(d.tr, o.q, ev.Device, dev, d.tr.Now(), d.lookup) {
		return
	}
	o.removeDevice(ev.Device)
}

// handleZoneDeleted mirrors handleGroupDeleted.
func (o *observer) handleZoneDeleted(d *Dispatcher, ev tree.Event) {
	z, err := d.tr.Zone(ev.Zone)
	if err != nil {
		return
	}
	for _, did := range z.Devices() {
		o.removeDevice(did)
	}
}
