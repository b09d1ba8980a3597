package qexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/tree"
)

func TestNarrowPinsOnDeviceID(t *testing.T) {
	tr := tree.New()
	d1 := tr.CreateDevice("a", "")
	_ = tr.CreateDevice("b", "")

	q := &query.Query{DeviceFilter: &query.DeviceFilter{Kind: query.DFID, ID: query.DeviceIDClause{Match: query.IDIs, Device: d1}}}
	candidates, global := narrow(tr, q)
	require.False(t, global)
	assert.Len(t, candidates, 1)
	_, ok := candidates[d1]
	assert.True(t, ok)
}

func TestNarrowPinsOnGroupMembership(t *testing.T) {
	tr := tree.New()
	d1 := tr.CreateDevice("a", "")
	d2 := tr.CreateDevice("b", "")
	g := tr.CreateGroup("kitchen")
	require.NoError(t, tr.GroupAddDevice(g, d1))

	q := &query.Query{GroupFilter: &query.GroupFilter{Kind: query.GFID, ID: query.GroupIDClause{Match: query.IDIs, Group: g}}}
	candidates, global := narrow(tr, q)
	require.False(t, global)
	assert.Len(t, candidates, 1)
	_, ok := candidates[d1]
	assert.True(t, ok)
	_, ok = candidates[d2]
	assert.False(t, ok)
}

func TestNarrowGlobalScanWhenNoPins(t *testing.T) {
	tr := tree.New()
	q := &query.Query{}
	_, global := narrow(tr, q)
	assert.True(t, global)
}

func TestNarrowDoesNotConsumeResidualFilter(t *testing.T) {
	// A device pinned by id still fails the full filter tree if a residual
	// clause rejects it — narrowing is never a substitute for Eval.
	tr := tree.New()
	d1 := tr.CreateDevice("kitchen", "")

	q := &query.Query{
		DeviceFilter: query.AllDevice(
			&query.DeviceFilter{Kind: query.DFID, ID: query.DeviceIDClause{Match: query.IDIs, Device: d1}},
			&query.DeviceFilter{Kind: query.DFNameEquals, Name: "not-kitchen"},
		),
	}
	res, err := Exec(tr, &query.Query{Action: query.ActionCount, Target: query.Devices, DeviceFilter: q.DeviceFilter})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count, "residual NameEquals must still reject the id-pinned device")
}
