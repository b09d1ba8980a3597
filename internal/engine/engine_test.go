package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/tree"
)

type fakeSink struct {
	writes []component.Component
}

func (s *fakeSink) StartTransaction(tree.DeviceID) error { return nil }
func (s *fakeSink) SelectEntity(tree.EntityIndex) error  { return nil }
func (s *fakeSink) WriteComponent(_ component.ComponentType, c component.Component) error {
	s.writes = append(s.writes, c)
	return nil
}
func (s *fakeSink) DeselectEntity() error { return nil }
func (s *fakeSink) EndTransaction() error { return nil }
func (s *fakeSink) Flush() error          { return nil }

type historyEntry struct {
	device   tree.DeviceID
	entityID string
	value    component.Component
}

type fakeHistorian struct {
	entries []historyEntry
}

func (h *fakeHistorian) Append(did tree.DeviceID, entityID string, c component.Component, _ time.Time) error {
	h.entries = append(h.entries, historyEntry{device: did, entityID: entityID, value: c})
	return nil
}

func (h *fakeHistorian) Close() error { return nil }

func newTestEngine(t *testing.T) (*Engine, func()) {
	e := New(4, time.Second, zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	return e, cancel
}

func TestEngineCreateDeviceAndQuery(t *testing.T) {
	e, cancel := newTestEngine(t)
	defer cancel()

	did := e.CreateDevice("kitchen", "")
	eidx, err := e.RegisterEntity(did, "main")
	require.NoError(t, err)
	require.NoError(t, e.PutComponent(did, eidx, component.Switch(true)))

	q := &query.Query{Action: query.ActionGet, Target: query.Components(component.TypeSwitch)}
	res, err := e.Query(q)
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, component.Switch(true), res.Entities[0].Value)
}

func TestEngineRecordsHistoryOnPutAndSet(t *testing.T) {
	h := &fakeHistorian{}
	e := New(4, time.Second, zaptest.NewLogger(t).Sugar(), WithHistory(h))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	did := e.CreateDevice("kitchen", "")
	eidx, err := e.RegisterEntity(did, "main")
	require.NoError(t, err)
	require.NoError(t, e.PutComponent(did, eidx, component.Switch(true)))
	require.NoError(t, e.SetComponent(did, eidx, component.Switch(false)))

	require.Len(t, h.entries, 2)
	assert.Equal(t, did, h.entries[0].device)
	assert.Equal(t, "main", h.entries[0].entityID)
	assert.Equal(t, component.Switch(true), h.entries[0].value)
	assert.Equal(t, component.Switch(false), h.entries[1].value)
}

func TestEngineRenameGroupAndZoneLifecycle(t *testing.T) {
	e, cancel := newTestEngine(t)
	defer cancel()

	gid := e.CreateGroup("downstairs")
	require.NoError(t, e.RenameGroup(gid, "ground floor"))
	require.NoError(t, e.DeleteGroup(gid))
	assert.Error(t, e.RenameGroup(gid, "nope"))

	did := e.CreateDevice("lamp", "")
	zid := e.CreateZone("living room")
	require.NoError(t, e.ZoneAddDevice(zid, did))
	require.NoError(t, e.SetZoneDisabled(zid, true))
	require.NoError(t, e.RenameZone(zid, "lounge"))

	zones := e.Zones()
	require.Len(t, zones, 1)
	assert.Equal(t, "lounge", zones[0].Name)
	assert.True(t, zones[0].Disabled)
	assert.Equal(t, []tree.DeviceID{did}, zones[0].Devices)

	require.NoError(t, e.ZoneRemoveDevice(zid, did))
	zones = e.Zones()
	assert.Empty(t, zones[0].Devices)

	require.NoError(t, e.DeleteZone(zid))
	assert.Empty(t, e.Zones())
}

func TestEngineSetRoutesThroughOwningSink(t *testing.T) {
	e, cancel := newTestEngine(t)
	defer cancel()

	sink := &fakeSink{}
	_, err := e.AttachExtension("floe-1", sink)
	require.NoError(t, err)
	did := e.CreateDevice("lamp", "floe-1")
	eidx, err := e.RegisterEntity(did, "main")
	require.NoError(t, err)
	require.NoError(t, e.PutComponent(did, eidx, component.Switch(false)))

	q := &query.Query{
		Action:   query.ActionSet,
		Target:   query.Components(component.TypeSwitch),
		SetValue: component.Switch(true),
	}
	_, err = e.Query(q)
	require.NoError(t, err)
	assert.Equal(t, []component.Component{component.Switch(true)}, sink.writes)
}

func TestEngineSubscribeDeliversUpdateThroughClientQueue(t *testing.T) {
	e, cancel := newTestEngine(t)
	defer cancel()

	did := e.CreateDevice("kitchen", "")
	eidx, err := e.RegisterEntity(did, "main")
	require.NoError(t, err)
	require.NoError(t, e.PutComponent(did, eidx, component.Switch(true)))

	c := e.Connect()
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch)}
	_, err = e.Subscribe(q, c, 7)
	require.NoError(t, err)

	require.NoError(t, e.SetComponent(did, eidx, component.Switch(false)))

	select {
	case env := <-c.Outbound():
		assert.Equal(t, uint64(7), env.QueryID)
		assert.Equal(t, component.Switch(false), env.Update.Value)
	case <-time.After(time.Second):
		t.Fatal("expected an update on the client's outbound queue")
	}
}

func TestEngineDisconnectStopsFurtherDelivery(t *testing.T) {
	e, cancel := newTestEngine(t)
	defer cancel()

	did := e.CreateDevice("kitchen", "")
	eidx, err := e.RegisterEntity(did, "main")
	require.NoError(t, err)
	require.NoError(t, e.PutComponent(did, eidx, component.Switch(true)))

	c := e.Connect()
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch)}
	_, err = e.Subscribe(q, c, 1)
	require.NoError(t, err)

	e.Disconnect(c.ID())
	require.NoError(t, e.SetComponent(did, eidx, component.Switch(false)))

	select {
	case <-c.Outbound():
		t.Fatal("disconnected client must not receive further updates")
	case <-time.After(50 * time.Millisecond):
	}
}
