package component

// IglooType is the value-kind a component maps to for generic filtering and
// aggregation purposes (spec §4.1). Not every ComponentType has one — marker
// components carry no value at all.
type IglooType int

// The closed set of igloo types and their list forms (SPEC_FULL supplement
// 1, grounded on original_source's interface/src/types/compound.rs).
const (
	IglooInteger IglooType = iota
	IglooReal
	IglooText
	IglooBoolean
	IglooColor
	IglooDate
	IglooTime
	IglooIntegerList
	IglooRealList
	IglooTextList
	IglooBooleanList
	IglooColorList
	IglooDateList
	IglooTimeList
)

// AggregationOp is one of the closed set of aggregation operators spec
// §4.1 names: Sum, Mean, Median, Max, Min, Any, All.
type AggregationOp int

const (
	OpSum AggregationOp = iota
	OpMean
	OpMedian
	OpMax
	OpMin
	OpAny
	OpAll
)

func (op AggregationOp) String() string {
	switch op {
	case OpSum:
		return "sum"
	case OpMean:
		return "mean"
	case OpMedian:
		return "median"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	case OpAny:
		return "any"
	case OpAll:
		return "all"
	default:
		return "unknown"
	}
}

// meta is the per-variant registry row a code generator would emit.
type meta struct {
	name      string
	igloo     IglooType
	hasIgloo  bool
	aggregate map[AggregationOp]bool
}

func agg(ops ...AggregationOp) map[AggregationOp]bool {
	m := make(map[AggregationOp]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

// registry is the closed, generated-looking metadata table. Ordering and
// capability sets follow original_source's interface/src/types/agg.rs
// (AggregationOp::can_apply).
var registry = map[ComponentType]meta{
	TypeSwitch:                {name: "Switch", igloo: IglooBoolean, hasIgloo: true, aggregate: agg(OpMean, OpAny, OpAll)},
	TypeDimmer:                {name: "Dimmer", igloo: IglooReal, hasIgloo: true, aggregate: agg(OpMean, OpMedian, OpMax, OpMin, OpSum)},
	TypeColor:                 {name: "Color", igloo: IglooColor, hasIgloo: true, aggregate: agg(OpMean, OpMedian, OpMax, OpMin)},
	TypeText:                  {name: "Text", igloo: IglooText, hasIgloo: true},
	TypeInteger:               {name: "Integer", igloo: IglooInteger, hasIgloo: true, aggregate: agg(OpMean, OpMedian, OpMax, OpMin, OpSum)},
	TypeReal:                  {name: "Real", igloo: IglooReal, hasIgloo: true, aggregate: agg(OpMean, OpMedian, OpMax, OpMin, OpSum)},
	TypeBoolean:               {name: "Boolean", igloo: IglooBoolean, hasIgloo: true, aggregate: agg(OpMean, OpAny, OpAll)},
	TypeDate:                  {name: "Date", igloo: IglooDate, hasIgloo: true, aggregate: agg(OpMean, OpMedian, OpMax, OpMin)},
	TypeTime:                  {name: "Time", igloo: IglooTime, hasIgloo: true, aggregate: agg(OpMean, OpMedian, OpMax, OpMin)},
	TypeClimateMode:           {name: "ClimateMode", igloo: IglooText, hasIgloo: true, aggregate: agg(OpMean)},
	TypeSupportedClimateModes: {name: "SupportedClimateModes", igloo: IglooTextList, hasIgloo: true},
	TypeOnline:                {name: "Online"},
}

// Name returns the registered variant name for a tag, or "" if unknown.
func Name(t ComponentType) string {
	return registry[t].name
}

// GetTag returns the stable tag for a component value.
func GetTag(c Component) ComponentType {
	return c.Type()
}

// IglooTypeOf returns the IglooType a component type maps to, if any.
func IglooTypeOf(t ComponentType) (IglooType, bool) {
	m, ok := registry[t]
	if !ok || !m.hasIgloo {
		return 0, false
	}
	return m.igloo, true
}

// AggregatorFor reports whether (T, op) has a registered aggregator and, if
// so, returns a constructor for a fresh Aggregator instance.
func AggregatorFor(t ComponentType, op AggregationOp) (func() Aggregator, bool) {
	m, ok := registry[t]
	if !ok || !m.aggregate[op] {
		return nil, false
	}
	return func() Aggregator { return newAggregator(t, op) }, true
}

// CanAggregate reports whether op applies to iglooType, independent of any
// one ComponentType (spec §4.1, mirrors AggregationOp::can_apply).
func CanAggregate(it IglooType, op AggregationOp) bool {
	switch it {
	case IglooInteger, IglooReal:
		return op == OpMean || op == OpMedian || op == OpMax || op == OpMin || op == OpSum
	case IglooBoolean:
		return op == OpMean || op == OpAny || op == OpAll
	case IglooDate, IglooTime, IglooColor:
		return op == OpMean || op == OpMedian || op == OpMax || op == OpMin
	case IglooText:
		return op == OpMean
	default:
		return false
	}
}
