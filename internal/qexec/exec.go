// Package qexec implements the one-shot query executor (spec §4.5): given an
// already-optimized query.Query and a live tree.Tree, it narrows a candidate
// device set, walks it in filter order, and produces a Result.
//
// Exec assumes the caller already ran the query through optimize.Query —
// required-type hoisting, dead-branch folding, and cost reorder are the
// optimizer's job, not the executor's. Exec never mutates the tree; Set only
// drives the owning extension's Sink.
package qexec

import (
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/corerr"
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// ErrSubscriptionAction reports a Watch*/Observe* action handed to the
// one-shot executor; those establish standing subscriptions and belong to
// internal/dispatch instead (spec §4.7, §4.8).
var ErrSubscriptionAction = errors.New("qexec: action establishes a subscription, not a one-shot query")

// ErrTargetActionMismatch reports an action this package does not support
// against the given target (e.g. Set against Floes).
var ErrTargetActionMismatch = errors.New("qexec: action not supported against this target")

// Exec runs q against t and returns its Result.
func Exec(t *tree.Tree, q *query.Query) (*Result, error) {
	if q.Action.IsSubscription() {
		return nil, ErrSubscriptionAction
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	now := t.Now()
	lookup := func(did tree.DeviceID) (*tree.Device, bool) {
		d, err := t.Device(did)
		return d, err == nil
	}

	switch q.Target.Kind {
	case query.TargetFloes:
		return execFloes(t, q, now, lookup)
	case query.TargetGroups:
		return execGroups(t, q, now, lookup)
	case query.TargetZones:
		return execZones(t, q, now, lookup)
	case query.TargetDevices:
		return execDevices(t, q, now, lookup)
	case query.TargetEntities, query.TargetComponents:
		return execEntities(t, q, now, lookup)
	}
	return nil, ErrTargetActionMismatch
}

func limitOf(q *query.Query) (uint32, bool) {
	if q.Limit == nil {
		return 0, false
	}
	return *q.Limit, true
}

// --- Floes ---

func execFloes(t *tree.Tree, q *query.Query, now time.Time, lookup query.DeviceLookup) (*Result, error) {
	if q.Action != query.ActionGet && q.Action != query.ActionGetAll && q.Action != query.ActionCount {
		return nil, ErrTargetActionMismatch
	}
	limit, hasLimit := limitOf(q)
	res := &Result{}
	t.IterExtensions(func(_ tree.ExtensionIndex, x *tree.Extension) bool {
		if !q.FloeFilter.Eval(x, now, lookup) {
			return true
		}
		res.Count++
		if q.Action == query.ActionCount {
			return true
		}
		res.FloeIDs = append(res.FloeIDs, x.ID())
		return !(q.Action == query.ActionGet && hasLimit && uint32(len(res.FloeIDs)) >= limit)
	})
	return res, nil
}

// --- Groups ---

func execGroups(t *tree.Tree, q *query.Query, now time.Time, lookup query.DeviceLookup) (*Result, error) {
	if q.Action != query.ActionGet && q.Action != query.ActionGetAll && q.Action != query.ActionCount {
		return nil, ErrTargetActionMismatch
	}
	limit, hasLimit := limitOf(q)
	res := &Result{}
	t.IterGroups(func(gid tree.GroupID, g *tree.Group) bool {
		if !q.GroupFilter.Eval(gid, g, now, lookup) {
			return true
		}
		res.Count++
		if q.Action == query.ActionCount {
			return true
		}
		res.GroupIDs = append(res.GroupIDs, gid)
		return !(q.Action == query.ActionGet && hasLimit && uint32(len(res.GroupIDs)) >= limit)
	})
	return res, nil
}

// --- Zones ---

// zoneMatches mirrors query.GroupFilter.Eval over a tree.Zone rather than a
// tree.Group. GFID always matches: GroupIDClause is typed to tree.GroupID,
// so a zone identity pin has no representation here (SPEC_FULL supplement;
// zones are addressed by name, not by a query-level id clause).
func zoneMatches(f *query.GroupFilter, id tree.ZoneID, z *tree.Zone, now time.Time, lookup query.DeviceLookup) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case query.GFAll:
		for _, c := range f.Children {
			if !zoneMatches(c, id, z, now, lookup) {
				return false
			}
		}
		return true
	case query.GFAny:
		for _, c := range f.Children {
			if zoneMatches(c, id, z, now, lookup) {
				return true
			}
		}
		return len(f.Children) == 0
	case query.GFNot:
		return !zoneMatches(f.Child, id, z, now, lookup)
	case query.GFID:
		return true
	case query.GFNameEquals:
		return z.Name() == f.Name
	case query.GFNameMatches:
		return query.NameMatches(f.Glob, z.Name())
	case query.GFHasDevice:
		for _, did := range z.Devices() {
			dev, ok := lookup(did)
			if ok && f.DevicePred.Eval(did, dev, now) {
				return true
			}
		}
		return false
	case query.GFAllDevices:
		devices := z.Devices()
		if len(devices) == 0 {
			return false
		}
		for _, did := range devices {
			dev, ok := lookup(did)
			if !ok || !f.DevicePred.Eval(did, dev, now) {
				return false
			}
		}
		return true
	}
	return true
}

func execZones(t *tree.Tree, q *query.Query, now time.Time, lookup query.DeviceLookup) (*Result, error) {
	if q.Action != query.ActionGet && q.Action != query.ActionGetAll && q.Action != query.ActionCount {
		return nil, ErrTargetActionMismatch
	}
	limit, hasLimit := limitOf(q)
	res := &Result{}
	t.IterZones(func(zid tree.ZoneID, z *tree.Zone) bool {
		if !zoneMatches(q.GroupFilter, zid, z, now, lookup) {
			return true
		}
		res.Count++
		if q.Action == query.ActionCount {
			return true
		}
		res.ZoneIDs = append(res.ZoneIDs, zid)
		return !(q.Action == query.ActionGet && hasLimit && uint32(len(res.ZoneIDs)) >= limit)
	})
	return res, nil
}

// --- Devices ---

// deviceGroupMatches reports whether d belongs to some group satisfying gf.
// Used as the residual re-check for a GroupFilter supplied alongside a
// Devices/Entities/Components query (spec §4.5's narrowing only pins a
// candidate set; the full filter is still re-evaluated per device, see
// internal/qexec/narrow.go).
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

// deviceFloeMatches reports whether d's owning extension satisfies ff.
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

// deviceMatches applies the residual device-level filters in the order spec
// §4.5 names: device filter, floe filter (via owner_ref), group filter
// (membership).
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

func execDevices(t *tree.Tree, q *query.Query, now time.Time, lookup query.DeviceLookup) (*Result, error) {
	switch q.Action {
	case query.ActionGet, query.ActionGetAll, query.ActionCount, query.ActionSnapshot:
	default:
		return nil, ErrTargetActionMismatch
	}

	candidates, global := narrow(t, q)
	limit, hasLimit := limitOf(q)
	res := &Result{}

	visit := func(did tree.DeviceID, d *tree.Device) bool {
		if !deviceMatches(t, q, did, d, now, lookup) {
			return true
		}
		res.Count++
		switch q.Action {
		case query.ActionCount:
		case query.ActionSnapshot:
			res.Snapshot = append(res.Snapshot, snapshotDevice(did, d))
		default:
			res.DeviceIDs = append(res.DeviceIDs, did)
		}
		if q.Action == query.ActionGet && hasLimit && uint32(res.Count) >= limit {
			return false
		}
		return true
	}

	if global {
		t.IterDevices(visit)
	} else {
		for did := range candidates {
			d, err := t.Device(did)
			if err != nil {
				continue
			}
			if !visit(did, d) {
				break
			}
		}
	}
	return res, nil
}

func snapshotDevice(did tree.DeviceID, d *tree.Device) DeviceSnapshot {
	snap := DeviceSnapshot{Device: did, Name: d.Name()}
	for _, e := range d.Entities() {
		es := EntitySnapshot{EntityID: e.ID(), Components: make(map[component.ComponentType]component.Component, e.ComponentCount())}
		for _, ct := range e.Types() {
			if v, ok := e.Get(ct); ok {
				es.Components[ct] = v
			}
		}
		snap.Entities = append(snap.Entities, es)
	}
	return snap
}

// --- Entities / Components(T) ---

func execEntities(t *tree.Tree, q *query.Query, now time.Time, lookup query.DeviceLookup) (*Result, error) {
	switch q.Action {
	case query.ActionGet, query.ActionGetAll, query.ActionGetAvg, query.ActionCount, query.ActionSet:
	default:
		return nil, ErrTargetActionMismatch
	}
	if q.Action == query.ActionSet {
		return execSet(t, q, now, lookup)
	}

	var agg component.Aggregator
	if q.Action == query.ActionGetAvg {
		a, ok := NewAggregator(q.Target.ComponentType, q.AggregateOp)
		if !ok {
			// Unreachable once Validate has run (Exec calls it above), kept
			// as a defensive fallback against a hand-built optimized query.
			return nil, corerr.QueryValidation(corerr.ReasonInvalidAggregate, "aggregation op does not apply to target type")
		}
		agg = a
	}

	candidates, global := narrow(t, q)
	limit, hasLimit := limitOf(q)
	res := &Result{}

	visitEntity := func(did tree.DeviceID, eidx tree.EntityIndex, e *tree.Entity) bool {
		if !q.EntityFilter.Eval(e, now) {
			return true
		}
		var value component.Component
		if q.Target.Kind == query.TargetComponents {
			v, ok := e.Get(q.Target.ComponentType)
			if !ok {
				return true
			}
			value = v
		}
		res.Count++
		switch q.Action {
		case query.ActionCount:
			return true
		case query.ActionGetAvg:
			return agg.Push(value)
		default:
			res.Entities = append(res.Entities, EntityValue{Device: did, Entity: eidx, EntityID: e.ID(), Value: value})
			if q.Action == query.ActionGet && hasLimit && uint32(len(res.Entities)) >= limit {
				return false
			}
			return true
		}
	}

	visitDevice := func(did tree.DeviceID, d *tree.Device) bool {
		if !deviceMatches(t, q, did, d, now, lookup) {
			return true
		}
		for idx, e := range d.Entities() {
			if !visitEntity(did, tree.EntityIndex(idx), e) {
				return false
			}
		}
		return true
	}

	if global {
		t.IterDevices(visitDevice)
	} else {
		for did := range candidates {
			d, err := t.Device(did)
			if err != nil {
				continue
			}
			if !visitDevice(did, d) {
				break
			}
		}
	}

	if q.Action == query.ActionGetAvg {
		v, ok := agg.Result()
		res.Aggregate, res.HasAggregate = v, ok
	}
	return res, nil
}

// execSet drives the transactional write sequence spec §4.5 names:
// start_transaction -> {select_entity -> write_component} -> end_transaction
// -> flush, once per device whose owner_ref is live. Devices with no
// owner_ref are skipped, not an error.
func execSet(t *tree.Tree, q *query.Query, now time.Time, lookup query.DeviceLookup) (*Result, error) {
	candidates, global := narrow(t, q)
	res := &Result{}

	visitDevice := func(did tree.DeviceID, d *tree.Device) bool {
		if !deviceMatches(t, q, did, d, now, lookup) {
			return true
		}
		idx, ok := d.OwnerRef()
		if !ok {
			return true
		}
		x, err := t.Extension(idx)
		if err != nil {
			return true
		}

		var entities []tree.EntityIndex
		for i, e := range d.Entities() {
			if q.Target.Kind == query.TargetComponents && !e.Has(q.Target.ComponentType) {
				continue
			}
			if !q.EntityFilter.Eval(e, now) {
				continue
			}
			entities = append(entities, tree.EntityIndex(i))
		}
		if len(entities) == 0 {
			return true
		}

		sink := x.Sink()
		if err := sink.StartTransaction(did); err != nil {
			res.Errors = append(res.Errors, corerr.Transport(
				pkgerrors.Wrapf(err, "start transaction on device %s", did).Error()))
			return true
		}
		for _, eidx := range entities {
			if err := sink.SelectEntity(eidx); err != nil {
				res.Errors = append(res.Errors, corerr.Transport(
					pkgerrors.Wrapf(err, "select entity %d on device %s", eidx, did).Error()))
				continue
			}
			if err := sink.WriteComponent(q.SetValue.Type(), q.SetValue); err != nil {
				res.Errors = append(res.Errors, corerr.Transport(
					pkgerrors.Wrapf(err, "write component on device %s", did).Error()))
			}
			_ = sink.DeselectEntity()
		}
		if err := sink.EndTransaction(); err != nil {
			res.Errors = append(res.Errors, corerr.Transport(
				pkgerrors.Wrapf(err, "end transaction on device %s", did).Error()))
		}
		_ = sink.Flush()

		res.Written = append(res.Written, did)
		res.Count++
		return true
	}

	if global {
		t.IterDevices(visitDevice)
	} else {
		for did := range candidates {
			d, err := t.Device(did)
			if err != nil {
				continue
			}
			visitDevice(did, d)
		}
	}
	return res, nil
}
