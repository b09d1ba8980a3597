package qexec

import (
	"github.com/brightgate-labs/reactor/internal/query"
	"github.com/brightgate-labs/reactor/internal/tree"
)

// deviceSet is a lightweight membership set used only for narrowing; it is
// never the final word on whether a device matches (the residual filter is
// always re-evaluated — see narrow doc comment).
type deviceSet map[tree.DeviceID]struct{}

func setOf(ids []tree.DeviceID) deviceSet {
	s := make(deviceSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func intersectSets(sets []deviceSet) deviceSet {
	if len(sets) == 0 {
		return nil
	}
	out := sets[0]
	for _, s := range sets[1:] {
		next := make(deviceSet, len(out))
		for id := range out {
			if _, ok := s[id]; ok {
				next[id] = struct{}{}
			}
		}
		out = next
	}
	return out
}

// pinnedDeviceIDs reports the device id set a bare or top-level-conjunctive
// DFID clause pins, per spec §4.5: "If device_filter.id is Is(d) or In(ds),
// start from that set."
func pinnedDeviceIDs(f *query.DeviceFilter) ([]tree.DeviceID, bool) {
	if f == nil {
		return nil, false
	}
	if f.Kind == query.DFID {
		return idClauseIDs(f.ID)
	}
	if f.Kind == query.DFAll {
		for _, c := range f.Children {
			if c.Kind == query.DFID {
				if ids, ok := idClauseIDs(c.ID); ok {
					return ids, true
				}
			}
		}
	}
	return nil, false
}

func idClauseIDs(c query.DeviceIDClause) ([]tree.DeviceID, bool) {
	switch c.Match {
	case query.IDIs:
		return []tree.DeviceID{c.Device}, true
	case query.IDIn:
		return c.Devices, true
	}
	return nil, false
}

// pinnedGroupIDs mirrors pinnedDeviceIDs for a GroupFilter supplied
// alongside a Devices/Entities/Components query (spec §4.5: "group_filter
// pins one group").
func pinnedGroupIDs(f *query.GroupFilter) ([]tree.GroupID, bool) {
	if f == nil {
		return nil, false
	}
	if f.Kind == query.GFID {
		return groupClauseIDs(f.ID)
	}
	if f.Kind == query.GFAll {
		for _, c := range f.Children {
			if c.Kind == query.GFID {
				if ids, ok := groupClauseIDs(c.ID); ok {
					return ids, true
				}
			}
		}
	}
	return nil, false
}

func groupClauseIDs(c query.GroupIDClause) ([]tree.GroupID, bool) {
	switch c.Match {
	case query.IDIs:
		return []tree.GroupID{c.Group}, true
	case query.IDIn:
		return c.Groups, true
	}
	return nil, false
}

// pinnedFloeIDs mirrors pinnedDeviceIDs for a FloeFilter (spec §4.5: "floe_
// filter pins ids").
func pinnedFloeIDs(f *query.FloeFilter) ([]string, bool) {
	if f == nil {
		return nil, false
	}
	if f.Kind == query.FFID {
		return floeClauseIDs(f.ID)
	}
	if f.Kind == query.FFAll {
		for _, c := range f.Children {
			if c.Kind == query.FFID {
				if ids, ok := floeClauseIDs(c.ID); ok {
					return ids, true
				}
			}
		}
	}
	return nil, false
}

func floeClauseIDs(c query.FloeIDClause) ([]string, bool) {
	switch c.Match {
	case query.IDIs:
		return []string{c.ID}, true
	case query.IDIn:
		return c.IDs, true
	}
	return nil, false
}

// narrow computes the candidate device set for q's DeviceFilter/GroupFilter/
// FloeFilter pins (spec §4.5). Unlike the spec's narrowing contract, this
// implementation never "consumes" (drops) the originating clause from
// residual evaluation — every candidate's full filter tree is still
// evaluated in Eval, so narrowing here is purely an optimization over which
// devices are visited, never a substitute for correctness (DESIGN.md notes
// this as a scope simplification). global reports whether no pin applied,
// meaning every live device is a candidate.
func narrow(t *tree.Tree, q *query.Query) (candidates deviceSet, global bool) {
	var sets []deviceSet

	if ids, ok := pinnedDeviceIDs(q.DeviceFilter); ok {
		sets = append(sets, setOf(ids))
	}
	if gids, ok := pinnedGroupIDs(q.GroupFilter); ok {
		var union []tree.DeviceID
		for _, gid := range gids {
			g, err := t.Group(gid)
			if err != nil {
				continue
			}
			union = append(union, g.Devices()...)
		}
		sets = append(sets, setOf(union))
	}
	if fids, ok := pinnedFloeIDs(q.FloeFilter); ok {
		var union []tree.DeviceID
		for _, fid := range fids {
			idx, ok := t.ExtensionByID(fid)
			if !ok {
				continue
			}
			x, err := t.Extension(idx)
			if err != nil {
				continue
			}
			union = append(union, x.DeviceIDs()...)
		}
		sets = append(sets, setOf(union))
	}

	if len(sets) == 0 {
		return nil, true
	}
	return intersectSets(sets), false
}
