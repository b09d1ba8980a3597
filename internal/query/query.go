// Package query defines the declarative request language the executor and
// optimizer operate on (spec §4.3). A Query names an Action, a Target
// collection, and up to one filter tree per collection kind; filters are
// plain data (no behavior beyond Eval), so the optimizer can rewrite them
// freely before the executor ever walks them.
package query

import (
	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/corerr"
)

// Action is what a Query does once its target set is resolved (spec §4.3,
// §4.5).
type Action int

const (
	ActionGet Action = iota
	ActionGetAll
	ActionGetAvg
	ActionSet
	ActionCount
	ActionSnapshot
	ActionObserveComponentPut
	ActionObserveRegistered
	ActionWatchValue
	ActionWatchAggregate
)

func (a Action) String() string {
	switch a {
	case ActionGet:
		return "get"
	case ActionGetAll:
		return "get_all"
	case ActionGetAvg:
		return "get_avg"
	case ActionSet:
		return "set"
	case ActionCount:
		return "count"
	case ActionSnapshot:
		return "snapshot"
	case ActionObserveComponentPut:
		return "observe_component_put"
	case ActionObserveRegistered:
		return "observe_registered"
	case ActionWatchValue:
		return "watch_value"
	case ActionWatchAggregate:
		return "watch_aggregate"
	}
	return "unknown"
}

// IsSubscription reports whether the action establishes a standing
// subscription (Watcher or Observer) rather than resolving once (spec
// §4.5, §4.7, §4.8).
func (a Action) IsSubscription() bool {
	switch a {
	case ActionObserveComponentPut, ActionObserveRegistered, ActionWatchValue, ActionWatchAggregate:
		return true
	}
	return false
}

// IsWatcher reports whether the action is a point-value or aggregate watch
// (spec §4.7), as opposed to a structural observe (spec §4.8).
func (a Action) IsWatcher() bool {
	return a == ActionWatchValue || a == ActionWatchAggregate
}

// TargetKind names which collection a Query walks.
type TargetKind int

const (
	TargetFloes TargetKind = iota
	TargetGroups
	TargetZones
	TargetDevices
	TargetEntities
	TargetComponents
)

// Target names the collection a Query resolves against. ComponentType is
// only meaningful when Kind == TargetComponents.
type Target struct {
	Kind          TargetKind
	ComponentType component.ComponentType
}

// Floes, Groups, Zones, Devices, Entities are the fixed, non-parameterized
// targets.
var (
	Floes    = Target{Kind: TargetFloes}
	Groups   = Target{Kind: TargetGroups}
	Zones    = Target{Kind: TargetZones}
	Devices  = Target{Kind: TargetDevices}
	Entities = Target{Kind: TargetEntities}
)

// Components builds a Target naming a single component type (spec §4.3:
// "Components(T)").
func Components(t component.ComponentType) Target {
	return Target{Kind: TargetComponents, ComponentType: t}
}

// Query is the full declarative request (spec §4.3). Target.Kind selects
// which filters apply: FloeFilter for TargetFloes, GroupFilter for
// TargetGroups/TargetZones, and for TargetDevices/TargetEntities/
// TargetComponents the DeviceFilter plus any FloeFilter (tested against the
// owning extension) and GroupFilter (tested against the device's groups),
// with EntityFilter also narrowing which entities for TargetEntities/
// TargetComponents.
type Query struct {
	Action Action
	Target Target

	FloeFilter   *FloeFilter
	GroupFilter  *GroupFilter
	DeviceFilter *DeviceFilter
	EntityFilter *EntityFilter

	// AggregateOp selects the aggregation applied by ActionGetAvg and
	// ActionWatchAggregate (spec §4.5, §4.7).
	AggregateOp component.AggregationOp

	// SetValue is the component written by ActionSet.
	SetValue component.Component

	// Limit bounds a one-shot action's result set (spec §4.5: invalid on
	// a subscription action, see corerr.QueryValidation).
	Limit *uint32
}

// ForcedDeviceTypes returns the component types any device matching q's
// DeviceFilter must carry, hoisted from conjunctive filter positions (spec
// §4.4 step 6). Used by the optimizer to install a cheap HasAll presence
// check ahead of costlier predicates.
func (q *Query) ForcedDeviceTypes() []component.ComponentType {
	var out []component.ComponentType
	q.DeviceFilter.CollectForced(&out)
	return out
}

// ForcedEntityTypes returns the component types any entity matching q's
// EntityFilter must carry (spec §4.4 step 6).
func (q *Query) ForcedEntityTypes() []component.ComponentType {
	var out []component.ComponentType
	q.EntityFilter.CollectForced(&out)
	return out
}

// Validate checks the structural invariants spec §4.3 places on a Query
// independent of the tree it will run against: a Limit is meaningless (and
// rejected) on a subscription action, and WatchAggregate/GetAvg's op must
// actually apply to the named component type.
func (q *Query) Validate() error {
	if q.Limit != nil {
		switch {
		case q.Action == ActionObserveComponentPut || q.Action == ActionObserveRegistered:
			return corerr.QueryValidation(corerr.ReasonLimitOnObserver, "limit is invalid on an observer action")
		case q.Action.IsWatcher():
			return corerr.QueryValidation(corerr.ReasonLimitOnWatcher, "limit is invalid on a watcher action")
		}
	}
	if q.Action == ActionGetAvg || q.Action == ActionWatchAggregate {
		if q.Target.Kind != TargetComponents {
			return corerr.QueryValidation(corerr.ReasonInvalidAggregate, "aggregation requires a Components(T) target")
		}
		if _, ok := component.AggregatorFor(q.Target.ComponentType, q.AggregateOp); !ok {
			return corerr.QueryValidation(corerr.ReasonInvalidAggregate,
				"aggregation op "+q.AggregateOp.String()+" does not apply to "+component.Name(q.Target.ComponentType))
		}
	}
	return nil
}
