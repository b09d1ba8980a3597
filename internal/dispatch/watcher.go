package dispatch

import (
	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/subindex"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// watcher is a registered WatchValue/WatchAggregate subscription: its
// matched set is exact (device, entity) pairs carrying the watched
// component type and satisfying the entity filter (spec §4.7).
type watcher struct {
	id     subindex.SubID
	q      *query.Query
	sender Sender

	matched map[tree.DeviceID]map[tree.EntityIndex]struct{}

	// extDevices remembers which matched devices were attributed to which
	// extension at match time, since ext_detached clears Device.ownerRef
	// and frees the extension record before the event reaches Emit
	// (tree.DetachExtension), leaving no way to recover the association
	// from tree state alone.
	extDevices map[tree.ExtensionIndex]map[tree.DeviceID]struct{}
}

func (w *watcher) isMatched(did tree.DeviceID, eidx tree.EntityIndex) bool {
	ents, ok := w.matched[did]
	if !ok {
		return false
	}
	_, ok = ents[eidx]
	return ok
}

func (w *watcher) addMatch(did tree.DeviceID, eidx tree.EntityIndex) {
	ents, ok := w.matched[did]
	if !ok {
		ents = make(map[tree.EntityIndex]struct{})
		w.matched[did] = ents
	}
	ents[eidx] = struct{}{}
}

func (w *watcher) removeMatch(did tree.DeviceID, eidx tree.EntityIndex) {
	ents, ok := w.matched[did]
	if !ok {
		return
	}
	delete(ents, eidx)
	if len(ents) == 0 {
		delete(w.matched, did)
	}
}

func (w *watcher) trackExt(xidx tree.ExtensionIndex, did tree.DeviceID) {
	devs, ok := w.extDevices[xidx]
	if !ok {
		devs = make(map[tree.DeviceID]struct{})
		w.extDevices[xidx] = devs
	}
	devs[did] = struct{}{}
}

// expand adds (did, eidx) to the matched set, if not already present, and
// installs the subscriptions a newly-matched pair needs (spec §4.7: the
// component_set subscription for the watched type, device/ext scoping for
// contraction).
func (w *watcher) expand(d *Dispatcher, did tree.DeviceID, dev *tree.Device, eidx tree.EntityIndex) {
	if w.isMatched(did, eidx) {
		return
	}
	w.addMatch(did, eidx)
	d.idx.AddComponentSet(subindex.ComponentSetKey{Device: did, Entity: eidx, Type: w.q.Target.ComponentType}, w.id)
	d.idx.AddDevice(did, w.id)
	if xidx, ok := dev.OwnerRef(); ok {
		d.idx.AddExt(xidx, w.id)
		w.trackExt(xidx, did)
	}
}

func (w *watcher) contract(did tree.DeviceID, eidx tree.EntityIndex) {
	w.removeMatch(did, eidx)
}

// emit re-aggregates (WatchAggregate) or re-reads the single value
// (WatchValue) and sends an Update (spec §4.7 hot-path contract).
func (w *watcher) emit(d *Dispatcher, did tree.DeviceID, eidx tree.EntityIndex, e *tree.Entity) {
	t := w.q.Target.ComponentType
	if w.q.Action == query.ActionWatchAggregate {
		w.emitAggregate(d)
		return
	}
	v, ok := e.Get(t)
	if !ok {
		return
	}
	w.sender.Send(Update{
		SubID:    w.id,
		Kind:     UpdateValue,
		Device:   did,
		Entity:   eidx,
		EntityID: e.ID(),
		Value:    v,
	})
}

// emitAggregate re-aggregates across the whole matched set (spec §4.7: "For
// WatchAggregate, re-aggregate across the whole matched set ... and emit the
// aggregate").
func (w *watcher) emitAggregate(d *Dispatcher) {
	agg, ok := component.AggregatorFor(w.q.Target.ComponentType, w.q.AggregateOp)
	if !ok {
		return
	}
	a := agg()
	for did, ents := range w.matched {
		dev, err := d.tr.Device(did)
		if err != nil {
			continue
		}
		for eidx := range ents {
			e, ok := dev.Entity(eidx)
			if !ok {
				continue
			}
			v, ok := e.Get(w.q.Target.ComponentType)
			if !ok {
				continue
			}
			if !a.Push(v) {
				break
			}
		}
	}
	v, ok := a.Result()
	if !ok {
		return
	}
	w.sender.Send(Update{SubID: w.id, Kind: UpdateAggregate, Aggregate: v})
}

// recheck re-derives full membership from current tree state: device
// filter, floe filter, group filter, presence of the watched type, and the
// entity filter. Spec §4.7 distinguishes "cheap runtime predicates" from
// membership-changing ones for subscription routing purposes, but the
// hot-path recheck itself always re-evaluates the whole predicate tree — the
// same never-consume stance internal/qexec's narrow takes: the subscriber
// index only decides which events reach a handler, never whether a
// candidate still matches.
func (w *watcher) recheck(d *Dispatcher, did tree.DeviceID, dev *tree.Device, eidx tree.EntityIndex, e *tree.Entity) bool {
	now := d.tr.Now()
	if !deviceMatches(d.tr, w.q, did, dev, now, d.lookup) {
		return false
	}
	if !e.Has(w.q.Target.ComponentType) {
		return false
	}
	return w.q.EntityFilter.Eval(e, now)
}

func (w *watcher) handleComponentSet(d *Dispatcher, ev tree.Event) {
	if !w.isMatched(ev.Device, ev.Entity) {
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
	if !w.recheck(d, ev.Device, dev, ev.Entity, e) {
		w.contract(ev.Device, ev.Entity)
		return
	}
	w.emit(d, ev.Device, ev.Entity, e)
}

func (w *watcher) handleComponentRemoved(d *Dispatcher, ev tree.Event) {
	if !w.isMatched(ev.Device, ev.Entity) {
		return
	}
	if ev.Component != w.q.Target.ComponentType {
		return
	}
	w.contract(ev.Device, ev.Entity)
}

func (w *watcher) handleComponentPut(d *Dispatcher, ev tree.Event) {
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	e, ok := dev.Entity(ev.Entity)
	if !ok {
		return
	}
	t := w.q.Target.ComponentType

	if w.isMatched(ev.Device, ev.Entity) {
		if !w.recheck(d, ev.Device, dev, ev.Entity, e) {
			w.contract(ev.Device, ev.Entity)
			return
		}
		if ev.Component == t {
			w.emit(d, ev.Device, ev.Entity, e)
		}
		return
	}

	if !w.recheck(d, ev.Device, dev, ev.Entity, e) {
		return
	}
	w.expand(d, ev.Device, dev, ev.Entity)
	if ev.Component == t {
		w.emit(d, ev.Device, ev.Entity, e)
	}
}

func (w *watcher) handleDeviceDeleted(ev tree.Event) {
	delete(w.matched, ev.Device)
}

func (w *watcher) handleExtDetached(ev tree.Event) {
	devs, ok := w.extDevices[ev.Extension]
	if !ok {
		return
	}
	for did := range devs {
		delete(w.matched, did)
	}
	delete(w.extDevices, ev.Extension)
}

func (w *watcher) handleGroupDeviceAdded(d *Dispatcher, ev tree.Event) {
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	now := d.tr.Now()
	if !deviceMatches(d.tr, w.q, ev.Device, dev, now, d.lookup) {
		return
	}
	t := w.q.Target.ComponentType
	for i, e := range dev.Entities() {
		eidx := tree.EntityIndex(i)
		if w.isMatched(ev.Device, eidx) {
			continue
		}
		if !e.Has(t) || !w.q.EntityFilter.Eval(e, now) {
			continue
		}
		w.expand(d, ev.Device, dev, eidx)
		w.emit(d, ev.Device, eidx, e)
	}
}

func (w *watcher) handleGroupDeviceRemoved(d *Dispatcher, ev tree.Event) {
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	now := d.tr.Now()
	if deviceMatches(d.tr, w.q, ev.Device, dev, now, d.lookup) {
		return
	}
	delete(w.matched, ev.Device)
}

// handleGroupDeleted contracts every device that was a member of the
// deleted group, independent of whether the device filter's group clause
// could in principle still be satisfied through another group: tree.Group
// still resolves at emit time (DeleteGroup clears device-side membership
// only after emitting), but simulating "gid removed, recheck the rest of an
// Any/All clause" is not worth the complexity this subscription path would
// need (DESIGN.md).
func (w *watcher) handleGroupDeleted(d *Dispatcher, ev tree.Event) {
	g, err := d.tr.Group(ev.Group)
	if err != nil {
		return
	}
	for _, did := range g.Devices() {
		delete(w.matched, did)
	}
}

// handleZoneDeviceAdded mirrors handleGroupDeviceAdded: a device freshly
// joining a watched zone can expand the matched set.
func (w *watcher) handleZoneDeviceAdded(d *Dispatcher, ev tree.Event) {
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	now := d.tr.Now()
	if !deviceMatches(d.tr, w.q, ev.Device, dev, now, d.lookup) {
		return
	}
	t := w.q.Target.ComponentType
	for i, e := range dev.Entities() {
		eidx := tree.EntityIndex(i)
		if w.isMatched(ev.Device, eidx) {
			continue
		}
		if !e.Has(t) || !w.q.EntityFilter.Eval(e, now) {
			continue
		}
		w.expand(d, ev.Device, dev, eidx)
		w.emit(d, ev.Device, eidx, e)
	}
}

// handleZoneDeviceRemoved mirrors handleGroupDeviceRemoved.
func (w *watcher) handleZoneDeviceRemoved(d *Dispatcher, ev tree.Event) {
	dev, err := d.tr.Device(ev.Device)
	if err != nil {
		return
	}
	now := d.tr.Now()
	if deviceMatches(d.tr, w.q, ev.Device, dev, now, d.lookup) {
		return
	}
	delete(w.matched, ev.Device)
}

// handleZoneDeleted mirrors handleGroupDeleted.
func (w *watcher) handleZoneDeleted(d *Dispatcher, ev tree.Event) {
	z, err := d.tr.Zone(ev.Zone)
	if err != nil {
		return
	}
	for _, did := range z.Devices() {
		delete(w.matched, did)
	}
}
