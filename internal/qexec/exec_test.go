package qexec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/corerr"
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/tree"
)

func buildTestTree(t *testing.T) (*tree.Tree, tree.DeviceID, tree.DeviceID) {
	t.Helper()
	tr := tree.New()

	kitchen := tr.CreateDevice("kitchen-switch", "")
	eidx, err := tr.RegisterEntity(kitchen, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(kitchen, eidx, component.Switch(true)))

	bedroom := tr.CreateDevice("bedroom-dimmer", "")
	eidx2, err := tr.RegisterEntity(bedroom, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(bedroom, eidx2, component.Dimmer(0.5)))

	return tr, kitchen, bedroom
}

func TestExecGetComponentsByName(t *testing.T) {
	tr, kitchen, _ := buildTestTree(t)

	q := &query.Query{
		Action:       query.ActionGet,
		Target:       query.Components(component.TypeSwitch),
		DeviceFilter: &query.DeviceFilter{Kind: query.DFNameEquals, Name: "kitchen-switch"},
	}
	res, err := Exec(tr, q)
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, kitchen, res.Entities[0].Device)
	assert.Equal(t, component.Switch(true), res.Entities[0].Value)
}

func TestExecCountDevices(t *testing.T) {
	tr, _, _ := buildTestTree(t)
	q := &query.Query{Action: query.ActionCount, Target: query.Devices}
	res, err := Exec(tr, q)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
}

func TestExecGetAvgMean(t *testing.T) {
	tr := tree.New()
	d1 := tr.CreateDevice("d1", "")
	e1, _ := tr.RegisterEntity(d1, "main")
	require.NoError(t, tr.PutComponent(d1, e1, component.Dimmer(0.2)))
	d2 := tr.CreateDevice("d2", "")
	e2, _ := tr.RegisterEntity(d2, "main")
	require.NoError(t, tr.PutComponent(d2, e2, component.Dimmer(0.8)))

	q := &query.Query{
		Action:      query.ActionGetAvg,
		Target:      query.Components(component.TypeDimmer),
		AggregateOp: component.OpMean,
	}
	res, err := Exec(tr, q)
	require.NoError(t, err)
	require.True(t, res.HasAggregate)
	assert.InDelta(t, 0.5, float64(res.Aggregate.(component.Dimmer)), 1e-9)
}

func TestExecRejectsSubscriptionAction(t *testing.T) {
	tr, _, _ := buildTestTree(t)
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch)}
	_, err := Exec(tr, q)
	assert.Equal(t, ErrSubscriptionAction, err)
}

func TestValidateRejectsLimitOnWatcher(t *testing.T) {
	lim := uint32(1)
	q := &query.Query{Action: query.ActionWatchValue, Target: query.Components(component.TypeSwitch), Limit: &lim}
	assert.Error(t, q.Validate())
}

func TestExecLimitTruncatesGet(t *testing.T) {
	tr, _, _ := buildTestTree(t)
	lim := uint32(1)
	q := &query.Query{Action: query.ActionGet, Target: query.Devices, Limit: &lim}
	res, err := Exec(tr, q)
	require.NoError(t, err)
	assert.Len(t, res.DeviceIDs, 1)
}

func TestExecSetSkipsDeviceWithNoOwner(t *testing.T) {
	tr, _, _ := buildTestTree(t)
	q := &query.Query{
		Action:       query.ActionSet,
		Target:       query.Components(component.TypeSwitch),
		DeviceFilter: &query.DeviceFilter{Kind: query.DFNameEquals, Name: "kitchen-switch"},
		SetValue:     component.Switch(false),
	}
	res, err := Exec(tr, q)
	require.NoError(t, err)
	assert.Empty(t, res.Written, "device has no owner_ref, so Set must skip it")
}

type fakeSink struct {
	started bool
	writes  []component.Component
	ended   bool
	flushed bool
}

func (s *fakeSink) StartTransaction(tree.DeviceID) error { s.started = true; return nil }
func (s *fakeSink) SelectEntity(tree.EntityIndex) error  { return nil }
func (s *fakeSink) WriteComponent(_ component.ComponentType, c component.Component) error {
	s.writes = append(s.writes, c)
	return nil
}
func (s *fakeSink) DeselectEntity() error { return nil }
func (s *fakeSink) EndTransaction() error { s.ended = true; return nil }
func (s *fakeSink) Flush() error          { s.flushed = true; return nil }

func TestExecSetWritesThroughOwningSink(t *testing.T) {
	tr := tree.New()
	sink := &fakeSink{}
	_, err := tr.AttachExtension("floe-1", sink)
	require.NoError(t, err)
	d := tr.CreateDevice("lamp", "floe-1")
	eidx, err := tr.RegisterEntity(d, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(d, eidx, component.Switch(false)))

	q := &query.Query{
		Action:   query.ActionSet,
		Target:   query.Components(component.TypeSwitch),
		SetValue: component.Switch(true),
	}
	res, err := Exec(tr, q)
	require.NoError(t, err)
	assert.Equal(t, []tree.DeviceID{d}, res.Written)
	assert.True(t, sink.started)
	assert.True(t, sink.ended)
	assert.True(t, sink.flushed)
	require.Len(t, sink.writes, 1)
	assert.Equal(t, component.Switch(true), sink.writes[0])
}

type failingSink struct {
	fakeSink
	failStart error
}

func (s *failingSink) StartTransaction(did tree.DeviceID) error {
	if s.failStart != nil {
		return s.failStart
	}
	return s.fakeSink.StartTransaction(did)
}

func TestExecSetCollectsTransportErrorOnSinkFailure(t *testing.T) {
	tr := tree.New()
	sink := &failingSink{failStart: errors.New("floe disconnected")}
	_, err := tr.AttachExtension("floe-1", sink)
	require.NoError(t, err)
	d := tr.CreateDevice("lamp", "floe-1")
	eidx, err := tr.RegisterEntity(d, "main")
	require.NoError(t, err)
	require.NoError(t, tr.PutComponent(d, eidx, component.Switch(false)))

	q := &query.Query{
		Action:   query.ActionSet,
		Target:   query.Components(component.TypeSwitch),
		SetValue: component.Switch(true),
	}
	res, err := Exec(tr, q)
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	require.Len(t, res.Errors, 1)
	var coreErr *corerr.Error
	require.ErrorAs(t, res.Errors[0], &coreErr)
	assert.Equal(t, corerr.CodeTransport, coreErr.Code)
	assert.Contains(t, coreErr.Message, "floe disconnected")
}
