// Package subindex implements the subscriber index (spec §4.6): a set of
// reverse-index maps from event keys to subscription ids, one map per event
// kind the dispatcher cares about, plus a universal "all" list for
// subscriptions that must see every occurrence of a kind regardless of key.
//
// Insertion and removal are O(1) per (key, subscription) pair. Unsubscribe
// is O(affected keys) per subscription via a per-subscription list of
// cleanup closures, rather than a scan of every bucket.
package subindex

import (
	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// SubID identifies one registered watcher or observer subscription.
type SubID uint64

// ComponentSetKey is the component_set reverse-index key: a specific
// (device, entity, type) triple a watcher's matched set names directly.
type ComponentSetKey struct {
	Device tree.DeviceID
	Entity tree.EntityIndex
	Type   component.ComponentType
}

// ComponentPutKey is the narrow component_put reverse-index key, used once a
// subscription already matches a specific (device, entity) pair and wants to
// hear about a particular expansion-candidate type on it.
type ComponentPutKey struct {
	Device tree.DeviceID
	Entity tree.EntityIndex
	Type   component.ComponentType
}

// Index is the subscriber index (spec §4.6).
type Index struct {
	componentSet       map[ComponentSetKey]map[SubID]struct{}
	componentPutByType map[component.ComponentType]map[SubID]struct{}
	componentPut       map[ComponentPutKey]map[SubID]struct{}
	byDevice           map[tree.DeviceID]map[SubID]struct{}
	byGroup            map[tree.GroupID]map[SubID]struct{}
	byZone             map[tree.ZoneID]map[SubID]struct{}
	byExt              map[tree.ExtensionIndex]map[SubID]struct{}
	all                map[SubID]struct{}

	unregister map[SubID][]func()
}

// New constructs an empty Index.
func New() *Index {
	return &Index{
		componentSet:       make(map[ComponentSetKey]map[SubID]struct{}),
		componentPutByType: make(map[component.ComponentType]map[SubID]struct{}),
		componentPut:       make(map[ComponentPutKey]map[SubID]struct{}),
		byDevice:           make(map[tree.DeviceID]map[SubID]struct{}),
		byGroup:            make(map[tree.GroupID]map[SubID]struct{}),
		byZone:             make(map[tree.ZoneID]map[SubID]struct{}),
		byExt:              make(map[tree.ExtensionIndex]map[SubID]struct{}),
		all:                make(map[SubID]struct{}),
		unregister:         make(map[SubID][]func()),
	}
}

func keys(m map[SubID]struct{}) []SubID {
	out := make([]SubID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func (ix *Index) track(id SubID, fn func()) {
	ix.unregister[id] = append(ix.unregister[id], fn)
}

func addGeneric(bucket map[SubID]struct{}, id SubID) { bucket[id] = struct{}{} }

// AddComponentSet subscribes id to component_set(D, E, T) (spec §4.7: every
// matched (D,E) pair and the watched type).
func (ix *Index) AddComponentSet(key ComponentSetKey, id SubID) {
	m, ok := ix.componentSet[key]
	if !ok {
		m = make(map[SubID]struct{})
		ix.componentSet[key] = m
	}
	addGeneric(m, id)
	ix.track(id, func() {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.componentSet, key)
		}
	})
}

// ComponentSet returns every subscription watching key.
func (ix *Index) ComponentSet(key ComponentSetKey) []SubID { return keys(ix.componentSet[key]) }

// AddComponentPutByType subscribes id to every component_put of type t,
// regardless of which device/entity it lands on (spec §4.7: expansion
// candidate types from the entity filter).
func (ix *Index) AddComponentPutByType(t component.ComponentType, id SubID) {
	m, ok := ix.componentPutByType[t]
	if !ok {
		m = make(map[SubID]struct{})
		ix.componentPutByType[t] = m
	}
	addGeneric(m, id)
	ix.track(id, func() {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.componentPutByType, t)
		}
	})
}

// ComponentPutByType returns every subscription watching every component_put
// of type t.
func (ix *Index) ComponentPutByType(t component.ComponentType) []SubID {
	return keys(ix.componentPutByType[t])
}

// AddComponentPut subscribes id to component_put(D, E, T) scoped to a
// specific, already-matched (device, entity) pair (spec §4.7: the watched
// type's first appearance, treated as a synthetic component_set).
func (ix *Index) AddComponentPut(key ComponentPutKey, id SubID) {
	m, ok := ix.componentPut[key]
	if !ok {
		m = make(map[SubID]struct{})
		ix.componentPut[key] = m
	}
	addGeneric(m, id)
	ix.track(id, func() {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.componentPut, key)
		}
	})
}

// ComponentPut returns every subscription watching key.
func (ix *Index) ComponentPut(key ComponentPutKey) []SubID { return keys(ix.componentPut[key]) }

// AddDevice subscribes id to device_created/deleted/renamed/entity_registered
// events scoped to did (spec §4.6: "by_did").
func (ix *Index) AddDevice(did tree.DeviceID, id SubID) {
	m, ok := ix.byDevice[did]
	if !ok {
		m = make(map[SubID]struct{})
		ix.byDevice[did] = m
	}
	addGeneric(m, id)
	ix.track(id, func() {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.byDevice, did)
		}
	})
}

// Device returns every subscription scoped to did.
func (ix *Index) Device(did tree.DeviceID) []SubID { return keys(ix.byDevice[did]) }

// AddGroup subscribes id to group_created/deleted/renamed/device_added/
// device_removed events scoped to gid (spec §4.6: "by_gid").
func (ix *Index) AddGroup(gid tree.GroupID, id SubID) {
	m, ok := ix.byGroup[gid]
	if !ok {
		m = make(map[SubID]struct{})
		ix.byGroup[gid] = m
	}
	addGeneric(m, id)
	ix.track(id, func() {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.byGroup, gid)
		}
	})
}

// Group returns every subscription scoped to gid.
func (ix *Index) Group(gid tree.GroupID) []SubID { return keys(ix.byGroup[gid]) }

// AddZone mirrors AddGroup for zone_* events.
func (ix *Index) AddZone(zid tree.ZoneID, id SubID) {
	m, ok := ix.byZone[zid]
	if !ok {
		m = make(map[SubID]struct{})
		ix.byZone[zid] = m
	}
	addGeneric(m, id)
	ix.track(id, func() {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.byZone, zid)
		}
	})
}

// Zone returns every subscription scoped to zid.
func (ix *Index) Zone(zid tree.ZoneID) []SubID { return keys(ix.byZone[zid]) }

// AddExt subscribes id to ext_attached/detached events scoped to xidx (spec
// §4.6: "by_xindex").
func (ix *Index) AddExt(xidx tree.ExtensionIndex, id SubID) {
	m, ok := ix.byExt[xidx]
	if !ok {
		m = make(map[SubID]struct{})
		ix.byExt[xidx] = m
	}
	addGeneric(m, id)
	ix.track(id, func() {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.byExt, xidx)
		}
	})
}

// Ext returns every subscription scoped to xidx.
func (ix *Index) Ext(xidx tree.ExtensionIndex) []SubID { return keys(ix.byExt[xidx]) }

// AddAll subscribes id to the universal list (spec §4.6: "subscriptions that
// must see every occurrence").
func (ix *Index) AddAll(id SubID) {
	addGeneric(ix.all, id)
	ix.track(id, func() { delete(ix.all, id) })
}

// All returns every universal subscription.
func (ix *Index) All() []SubID { return keys(ix.all) }

// Unsubscribe removes id from every bucket it was ever added to, in
// O(affected keys) via the tracked cleanup closures (spec §4.6).
func (ix *Index) Unsubscribe(id SubID) {
	for _, fn := range ix.unregister[id] {
		fn()
	}
	delete(ix.unregister, id)
}
