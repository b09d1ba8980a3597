package dispatch

import (
	"errors"
	"time"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/corerr"
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/subindex"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// ErrTargetActionMismatch reports a Query whose Action/Target combination
// does not describe a watcher or observer subscription this package
// registers.
var ErrTargetActionMismatch = errors.New("dispatch: action not supported as a subscription")

// Dispatcher is the engine task's sole tree.Emitter: it owns every
// registered watcher and observer, their matched sets, and the subscriber
// index keeping event dispatch off a full rescan (spec §4.6-§4.8). A
// Dispatcher is owned by the same single goroutine that owns its Tree.
type Dispatcher struct {
	tr     *tree.Tree
	idx    *subindex.Index
	lookup query.DeviceLookup

	watchers  map[subindex.SubID]*watcher
	observers map[subindex.SubID]*observer
	nextID    uint64
}

// New constructs a Dispatcher bound to tr. Callers install it with
// tr.SetEmitter(d) once constructed.
func New(tr *tree.Tree) *Dispatcher {
	d := &Dispatcher{
		tr:        tr,
		idx:       subindex.New(),
		watchers:  make(map[subindex.SubID]*watcher),
		observers: make(map[subindex.SubID]*observer),
	}
	d.lookup = func(did tree.DeviceID) (*tree.Device, bool) {
		dev, err := tr.Device(did)
		return dev, err == nil
	}
	return d
}

func (d *Dispatcher) nextSubID() subindex.SubID {
	d.nextID++
	return subindex.SubID(d.nextID)
}

// --- residual filter evaluation, duplicated from internal/qexec (unexported
// there) since registration and hot-path dispatch are not that package's
// concern and importing it back would invert the dependency. Registration is
// not a hot path; the only copy that runs per-event is deviceMatches itself,
// which is cheap relative to a full tree scan. ---

func deviceGroupMatches(t *tree.Tree, d *tree.Device, gf *query.GroupFilter, now time.Time, lookup query.DeviceLookup) bool {
	if gf == nil {
		return true
	}
	for _, gid := range d.Groups() {
		g, err := t.Group(gid)
		if err == nil && gf.Eval(gid, g, now, lookup) {
			return true
		}
	}
	return false
}

func deviceFloeMatches(t *tree.Tree, d *tree.Device, ff *query.FloeFilter, now time.Time, lookup query.DeviceLookup) bool {
	if ff == nil {
		return true
	}
	idx, ok := d.OwnerRef()
	if !ok {
		return false
	}
	x, err := t.Extension(idx)
	if err != nil {
		return false
	}
	return ff.Eval(x, now, lookup)
}

func deviceMatches(t *tree.Tree, q *query.Query, did tree.DeviceID, d *tree.Device, now time.Time, lookup query.DeviceLookup) bool {
	if !q.DeviceFilter.Eval(did, d, now) {
		return false
	}
	if !deviceFloeMatches(t, d, q.FloeFilter, now, lookup) {
		return false
	}
	if !deviceGroupMatches(t, d, q.GroupFilter, now, lookup) {
		return false
	}
	return true
}

// RegisterWatcher validates and installs a point-value or aggregate watcher
// (spec §4.7), computing its initial matched set by running the §4.5
// iteration with runtime predicates enabled.
func (d *Dispatcher) RegisterWatcher(q *query.Query, sender Sender) (subindex.SubID, error) {
	if !q.Action.IsWatcher() {
		return 0, ErrTargetActionMismatch
	}
	if q.Target.Kind != query.TargetComponents {
		return 0, ErrTargetActionMismatch
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}
	if q.Action == query.ActionWatchValue {
		if _, ok := component.IglooTypeOf(q.Target.ComponentType); !ok {
			return 0, corerr.QueryValidation(corerr.ReasonComponentNoValue,
				"watched type has no igloo_type and is not aggregated")
		}
	}

	id := d.nextSubID()
	t := q.Target.ComponentType
	w := &watcher{
		id:         id,
		q:          q,
		sender:     sender,
		matched:    make(map[tree.DeviceID]map[tree.EntityIndex]struct{}),
		extDevices: make(map[tree.ExtensionIndex]map[tree.DeviceID]struct{}),
	}

	now := d.tr.Now()
	d.tr.IterDevices(func(did tree.DeviceID, dev *tree.Device) bool {
		if !deviceMatches(d.tr, q, did, dev, now, d.lookup) {
			return true
		}
		for i, e := range dev.Entities() {
			if !e.Has(t) || !q.EntityFilter.Eval(e, now) {
				continue
			}
			w.addMatch(did, tree.EntityIndex(i))
		}
		return true
	})

	for did := range w.matched {
		for eidx := range w.matched[did] {
			d.idx.AddComponentSet(subindex.ComponentSetKey{Device: did, Entity: eidx, Type: t}, id)
		}
		d.idx.AddDevice(did, id)
		if dev, err := d.tr.Device(did); err == nil {
			if xidx, ok := dev.OwnerRef(); ok {
				d.idx.AddExt(xidx, id)
				w.trackExt(xidx, did)
			}
		}
	}

	expansionTypes := mentionedTypes(q.EntityFilter)
	sawTarget := false
	for _, et := range expansionTypes {
		if et == t {
			sawTarget = true
		}
		d.idx.AddComponentPutByType(et, id)
	}
	if !sawTarget {
		d.idx.AddComponentPutByType(t, id)
	}

	for _, gid := range deviceFilterGroups(q.DeviceFilter) {
		d.idx.AddGroup(gid, id)
	}
	for _, zid := range deviceFilterZones(q.DeviceFilter) {
		d.idx.AddZone(zid, id)
	}

	d.watchers[id] = w
	return id, nil
}

// RegisterObserver validates and installs a structural observer (spec
// §4.8): ObserveRegistered fires on entity registration only, and
// ObserveComponentPut fires on every put satisfying the filters.
func (d *Dispatcher) RegisterObserver(q *query.Query, sender Sender) (subindex.SubID, error) {
	if q.Action != query.ActionObserveComponentPut && q.Action != query.ActionObserveRegistered {
		return 0, ErrTargetActionMismatch
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	id := d.nextSubID()
	o := &observer{
		id:             id,
		q:              q,
		sender:         sender,
		matchedDevices: make(map[tree.DeviceID]struct{}),
		extDevices:     make(map[tree.ExtensionIndex]map[tree.DeviceID]struct{}),
	}

	now := d.tr.Now()
	d.tr.IterDevices(func(did tree.DeviceID, dev *tree.Device) bool {
		if deviceMatches(d.tr, q, did, dev, now, d.lookup) {
			o.addDevice(d, did, dev)
		}
		return true
	})

	for _, gid := range deviceFilterGroups(q.DeviceFilter) {
		d.idx.AddGroup(gid, id)
	}
	for _, zid := range deviceFilterZones(q.DeviceFilter) {
		d.idx.AddZone(zid, id)
	}
	if q.Action == query.ActionObserveComponentPut {
		for _, t := range mentionedTypes(q.EntityFilter) {
			d.idx.AddComponentPutByType(t, id)
		}
	}
	// device_created and ext_attached are expansion candidates for every
	// observer (spec §4.8: a newly created device or newly attached
	// extension can later satisfy the filter via subsequent events), and
	// neither carries a narrowable key ahead of time, so observers ride
	// the universal bucket for those two kinds.
	d.idx.AddAll(id)

	d.observers[id] = o
	return id, nil
}

// Unregister tears down a subscription, cleaning the subscriber index in
// O(affected keys) (spec §4.9: client disconnect cleanup).
func (d *Dispatcher) Unregister(id subindex.SubID) {
	d.idx.Unsubscribe(id)
	delete(d.watchers, id)
	delete(d.observers, id)
}

// Emit implements tree.Emitter. It is called synchronously from within the
// tree mutation that produced ev (spec §5: dispatch is atomic with its
// triggering event).
func (d *Dispatcher) Emit(ev tree.Event) {
	switch ev.Kind {
	case tree.EvComponentSet:
		for _, id := range d.idx.ComponentSet(subindex.ComponentSetKey{Device: ev.Device, Entity: ev.Entity, Type: ev.Component}) {
			if w, ok := d.watchers[id]; ok {
				w.handleComponentSet(d, ev)
			}
		}
	case tree.EvComponentPut:
		seen := make(map[subindex.SubID]struct{})
		for _, id := range d.idx.ComponentPutByType(ev.Component) {
			seen[id] = struct{}{}
			if w, ok := d.watchers[id]; ok {
				w.handleComponentPut(d, ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleComponentPut(d, ev)
			}
		}
		for _, id := range d.idx.All() {
			if _, dup := seen[id]; dup {
				continue
			}
			if o, ok := d.observers[id]; ok {
				o.handleComponentPut(d, ev)
			}
		}
	case tree.EvComponentRemoved:
		for _, id := range d.idx.ComponentSet(subindex.ComponentSetKey{Device: ev.Device, Entity: ev.Entity, Type: ev.Component}) {
			if w, ok := d.watchers[id]; ok {
				w.handleComponentRemoved(d, ev)
			}
		}
	case tree.EvEntityRegistered:
		for _, id := range d.idx.Device(ev.Device) {
			if o, ok := d.observers[id]; ok {
				o.handleEntityRegistered(d, ev)
			}
		}
	case tree.EvDeviceCreated:
		for _, id := range d.idx.All() {
			if o, ok := d.observers[id]; ok {
				o.handleDeviceCreated(d, ev)
			}
		}
	case tree.EvDeviceDeleted:
		for _, id := range d.idx.Device(ev.Device) {
			if w, ok := d.watchers[id]; ok {
				w.handleDeviceDeleted(ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleDeviceDeleted(ev)
			}
		}
	case tree.EvGroupDeviceAdded:
		for _, id := range d.idx.Group(ev.Group) {
			if w, ok := d.watchers[id]; ok {
				w.handleGroupDeviceAdded(d, ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleGroupDeviceAdded(d, ev)
			}
		}
	case tree.EvGroupDeviceRemoved:
		for _, id := range d.idx.Group(ev.Group) {
			if w, ok := d.watchers[id]; ok {
				w.handleGroupDeviceRemoved(d, ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleGroupDeviceRemoved(d, ev)
			}
		}
	case tree.EvGroupDeleted:
		for _, id := range d.idx.Group(ev.Group) {
			if w, ok := d.watchers[id]; ok {
				w.handleGroupDeleted(d, ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleGroupDeleted(d, ev)
			}
		}
	case tree.EvZoneDeviceAdded:
		for _, id := range d.idx.Zone(ev.Zone) {
			if w, ok := d.watchers[id]; ok {
				w.handleZoneDeviceAdded(d, ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleZoneDeviceAdded(d, ev)
			}
		}
	case tree.EvZoneDeviceRemoved:
		for _, id := range d.idx.Zone(ev.Zone) {
			if w, ok := d.watchers[id]; ok {
				w.handleZoneDeviceRemoved(d, ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleZoneDeviceRemoved(d, ev)
			}
		}
	case tree.EvZoneDeleted:
		for _, id := range d.idx.Zone(ev.Zone) {
			if w, ok := d.watchers[id]; ok {
				w.handleZoneDeleted(d, ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleZoneDeleted(d, ev)
			}
		}
	case tree.EvExtAttached:
		for _, id := range d.idx.All() {
			if o, ok := d.observers[id]; ok {
				o.handleExtAttached(d, ev)
			}
		}
	case tree.EvExtDetached:
		for _, id := range d.idx.Ext(ev.Extension) {
			if w, ok := d.watchers[id]; ok {
				w.handleExtDetached(ev)
			}
			if o, ok := d.observers[id]; ok {
				o.handleExtDetached(ev)
			}
		}
	}
}
