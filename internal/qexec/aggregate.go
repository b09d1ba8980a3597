package qexec

import "github.com/brightgate-labs/reactor/internal/component"

// NewAggregator is the shared entry point qexec and internal/dispatch both
// use to build an Aggregator for a (ComponentType, AggregationOp) pair,
// matching spec §4.5/§4.7's "Aggregator matched to (ComponentType, Op)".
func NewAggregator(t component.ComponentType, op component.AggregationOp) (component.Aggregator, bool) {
	ctor, ok := component.AggregatorFor(t, op)
	if !ok {
		return nil, false
	}
	return ctor(), true
}
