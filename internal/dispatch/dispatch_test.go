package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/tree"
)

type recorder struct {
	updates []Update
}

func (r *recorder) Send(u Update) { r.updates = append(r.updates, u) }

func newWiredTree() (*tree.Tree, *Dispatcher) {
	tr := tree.New()
	d := New(tr)
	tr.SetEmitter(d)
	return tr, d
}

func TestRegisterWatcherComputesInitialMatchedSet(t *testing.T) {
	tr, d := newWiredTree()
	kitchen := tr.CreateDevice("kitchen", "")
	eidx, err := tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(kitchen, eidx, component.Switch(true)))

	rec := &recorder{}
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch)}
	id, err := d.RegisterWatcher(q, rec)
	require.NoError(t, err)

	w := d.watchers[id]
	require.Len(t, w.matched, 1)
	_, ok := w.matched[kitchen][eidx]
	assert.True(t, ok)
}

func TestWatcherEmitsOnComponentSet(t *testing.T) {
	tr, d := newWiredTree()
	kitchen := tr.CreateDevice("kitchen", "")
	eidx, err := tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(kitchen, eidx, component.Switch(true)))

	rec := &recorder{}
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch)}
	_, err = d.RegisterWatcher(q, rec)
	require.NoError(t, err)

	require.NoError(t, tr.SetComponent(kitchen, eidx, component.Switch(false)))
	require.Len(t, rec.updates, 1)
	assert.Equal(t, component.Switch(false), rec.updates[0].Value)
}

func TestWatcherExpandsOnComponentPut(t *testing.T) {
	tr, d := newWiredTree()
	kitchen := tr.CreateDevice("kitchen", "")
	eidx, err := tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)
	// No Switch component yet, so the watcher starts with an empty matched set.

	rec := &recorder{}
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch)}
	id, err := d.RegisterWatcher(q, rec)
	require.NoError(t, err)
	assert.Empty(t, d.watchers[id].matched)

	require.NoError(t, tr.PutComponent(kitchen, eidx, component.Switch(true)))

	w := d.watchers[id]
	_, matched := w.matched[kitchen][eidx]
	assert.True(t, matched, "component_put of the watched type must expand the matched set")
	require.Len(t, rec.updates, 1)
	assert.Equal(t, component.Switch(true), rec.updates[0].Value)
}

func TestWatcherContractsOnDeviceDeleted(t *testing.T) {
	tr, d := newWiredTree()
	kitchen := tr.CreateDevice("kitchen", "")
	eidx, err := tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(kitchen, eidx, component.Switch(true)))

	rec := &recorder{}
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch)}
	id, err := d.RegisterWatcher(q, rec)
	require.NoError(t, err)

	require.NoError(t, tr.DeleteDevice(kitchen))
	assert.Empty(t, d.watchers[id].matched)
}

func TestWatcherAggregateRecomputesAcrossMatchedSet(t *testing.T) {
	tr, d := newWiredTree()
	d1 := tr.CreateDevice("d1", "")
	e1, _ := tr.RegisterEntity(d1, "main")
	require.NoError(t, tr.PutComponent(d1, e1, component.Dimmer(0.2)))
	d2 := tr.CreateDevice("d2", "")
	e2, _ := tr.RegisterEntity(d2, "main")
	require.NoError(t, tr.PutComponent(d2, e2, component.Dimmer(0.4)))

	rec := &recorder{}
	q := &query.Query{Action: query.ActionWatchAggregate, Target: query.Components(component.TypeDimmer), AggregateOp: component.OpMean}
	_, err := d.RegisterWatcher(q, rec)
	require.NoError(t, err)

	require.NoError(t, tr.SetComponent(d1, e1, component.Dimmer(0.8)))
	require.Len(t, rec.updates, 1)
	assert.InDelta(t, float64(component.Dimmer(0.6)), float64(rec.updates[0].Aggregate.(component.Dimmer)), 1e-9)
}

func TestRegisterWatcherRejectsLimit(t *testing.T) {
	tr, d := newWiredTree()
	lim := uint32(1)
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch), Limit: &lim}
	_, err := d.RegisterWatcher(q, &recorder{})
	assert.Error(t, err)
}

func TestRegisterWatcherRejectsNoIglooType(t *testing.T) {
	tr, d := newWiredTree()
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeOnline)}
	_, err := d.RegisterWatcher(q, &recorder{})
	assert.Error(t, err, "Online has no igloo_type and is never aggregated")
}

func TestObserverEmitsOnRegistration(t *testing.T) {
	tr, d := newWiredTree()
	kitchen := tr.CreateDevice("kitchen", "")

	rec := &recorder{}
	q := &query.Query{Action: query.ActionObserveRegistered, Target: query.Entities}
	_, err := d.RegisterObserver(q, rec)
	require.NoError(t, err)

	_, err = tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)

	require.Len(t, rec.updates, 1)
	assert.Equal(t, UpdateEntityRegistered, rec.updates[0].Kind)
	assert.Equal(t, "main", rec.updates[0].EntityID)
}

func TestObserverDoesNotEmitOnRegistrationForComponentPutFlavor(t *testing.T) {
	tr, d := newWiredTree()
	kitchen := tr.CreateDevice("kitchen", "")

	rec := &recorder{}
	q := &query.Query{Action: query.ActionObserveComponentPut, Target: query.Entities}
	_, err := d.RegisterObserver(q, rec)
	require.NoError(t, err)

	_, err = tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)
	assert.Empty(t, rec.updates)
}

func TestObserverEmitsOnComponentPut(t *testing.T) {
	tr, d := newWiredTree()
	kitchen := tr.CreateDevice("kitchen", "")
	eidx, err := tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)

	rec := &recorder{}
	q := &query.Query{Action: query.ActionObserveComponentPut, Target: query.Entities}
	_, err = d.RegisterObserver(q, rec)
	require.NoError(t, err)

	require.NoError(t, tr.PutComponent(kitchen, eidx, component.Switch(true)))
	require.Len(t, rec.updates, 1)
	assert.Equal(t, UpdateComponentPut, rec.updates[0].Kind)
	assert.Equal(t, component.Switch(true), rec.updates[0].Value)
}

func TestObserverExpandsOnDeviceCreatedThenEntityRegistered(t *testing.T) {
	tr, d := newWiredTree()

	rec := &recorder{}
	q := &query.Query{Action: query.ActionObserveRegistered, Target: query.Entities}
	_, err := d.RegisterObserver(q, rec)
	require.NoError(t, err)

	lamp := tr.CreateDevice("lamp", "")
	_, err = tr.RegisterEntity(lamp, "main")
	require.NoError(t, err)

	require.Len(t, rec.updates, 1)
	assert.Equal(t, UpdateEntityRegistered, rec.updates[0].Kind)
	assert.Equal(t, lamp, rec.updates[0].Device)
}

func TestObserverContractsOnDeviceDeleted(t *testing.T) {
	tr, d := newWiredTree()
	lamp := tr.CreateDevice("lamp", "")

	rec := &recorder{}
	q := &query.Query{Action: query.ActionObserveRegistered, Target: query.Entities}
	id, err := d.RegisterObserver(q, rec)
	require.NoError(t, err)
	require.Contains(t, d.observers[id].matchedDevices, lamp)

	require.NoError(t, tr.DeleteDevice(lamp))
	assert.NotContains(t, d.observers[id].matchedDevices, lamp)
	// device_deleted only retires matched-set bookkeeping; no entity was
	// ever registered on lamp, so no Update is ever produced.
	assert.Empty(t, rec.updates)
}

func TestWatcherExpandsAndContractsOnZoneMembership(t *testing.T) {
	tr, d := newWiredTree()
	zid := tr.CreateZone("living-room")
	lamp := tr.CreateDevice("lamp", "")
	eidx, err := tr.RegisterEntity(lamp, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(lamp, eidx, component.Switch(true)))

	rec := &recorder{}
	q := &query.Query{
		Action:       query.ActionWatchValue,
		Target:       query.Components(component.TypeSwitch),
		DeviceFilter: &query.DeviceFilter{Kind: query.DFZone, Zone: query.ZoneClause{Match: query.GroupMemberOf, Zone: zid}},
	}
	id, err := d.RegisterWatcher(q, rec)
	require.NoError(t, err)
	assert.Empty(t, d.watchers[id].matched, "lamp is not yet in the zone")

	require.NoError(t, tr.ZoneAddDevice(zid, lamp))
	_, matched := d.watchers[id].matched[lamp][eidx]
	assert.True(t, matched, "zone_device_added must resynchronize a zone-pinned watcher")
	require.Len(t, rec.updates, 1)
	assert.Equal(t, component.Switch(true), rec.updates[0].Value)

	require.NoError(t, tr.ZoneRemoveDevice(zid, lamp))
	assert.Empty(t, d.watchers[id].matched, "zone_device_removed must contract a zone-pinned watcher")
}

func TestWatcherContractsOnZoneDeleted(t *testing.T) {
	tr, d := newWiredTree()
	zid := tr.CreateZone("living-room")
	lamp := tr.CreateDevice("lamp", "")
	eidx, err := tr.RegisterEntity(lamp, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(lamp, eidx, component.Switch(true)))
	require.NoError(t, tr.ZoneAddDevice(zid, lamp))

	rec := &recorder{}
	q := &query.Query{
		Action:       query.ActionWatchValue,
		Target:       query.Components(component.TypeSwitch),
		DeviceFilter: &query.DeviceFilter{Kind: query.DFZone, Zone: query.ZoneClause{Match: query.GroupMemberOf, Zone: zid}},
	}
	id, err := d.RegisterWatcher(q, rec)
	require.NoError(t, err)
	require.NotEmpty(t, d.watchers[id].matched)

	require.NoError(t, tr.DeleteZone(zid))
	assert.Empty(t, d.watchers[id].matched)
}

func TestObserverExpandsAndContractsOnZoneMembership(t *testing.T) {
	tr, d := newWiredTree()
	zid := tr.CreateZone("living-room")
	lamp := tr.CreateDevice("lamp", "")

	rec := &recorder{}
	q := &query.Query{
		Action:       query.ActionObserveRegistered,
		Target:       query.Entities,
		DeviceFilter: &query.DeviceFilter{Kind: query.DFZone, Zone: query.ZoneClause{Match: query.GroupMemberOf, Zone: zid}},
	}
	id, err := d.RegisterObserver(q, rec)
	require.NoError(t, err)
	assert.NotContains(t, d.observers[id].matchedDevices, lamp)

	require.NoError(t, tr.ZoneAddDevice(zid, lamp))
	assert.Contains(t, d.observers[id].matchedDevices, lamp, "zone_device_added must resynchronize a zone-pinned observer")

	require.NoError(t, tr.ZoneRemoveDevice(zid, lamp))
	assert.NotContains(t, d.observers[id].matchedDevices, lamp, "zone_device_removed must contract a zone-pinned observer")
}

func TestUnregisterStopsFurtherDispatch(t *testing.T) {
	tr, d := newWiredTree()
	kitchen := tr.CreateDevice("kitchen", "")
	eidx, err := tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(kitchen, eidx, component.Switch(true)))

	rec := &recorder{}
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch)}
	id, err := d.RegisterWatcher(q, rec)
	require.NoError(t, err)

	d.Unregister(id)
	require.NoError(t, tr.SetComponent(kitchen, eidx, component.Switch(false)))
	assert.Empty(t, rec.updates)
}
