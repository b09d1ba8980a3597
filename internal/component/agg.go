package component

import (
	"math"
	"sort"
)

// Aggregator threads component pushes through an aggregation op (spec
// §4.5). Push returns false to signal the caller may stop early (a
// short-circuit: Any already saw true, All already saw false). Result
// reports ok=false for an empty input set — it must never panic (spec §8).
type Aggregator interface {
	Push(c Component) (cont bool)
	Result() (Component, bool)
}

func newAggregator(t ComponentType, op AggregationOp) Aggregator {
	switch t {
	case TypeInteger:
		return &numericAgg{op: op, make: func(v float64) Component { return Integer(int64(v)) }}
	case TypeDimmer:
		return &numericAgg{op: op, make: func(v float64) Component { return Dimmer(v) }}
	case TypeReal:
		return &numericAgg{op: op, make: func(v float64) Component { return Real(v) }}
	case TypeDate:
		return &numericAgg{op: op, make: func(v float64) Component { return Date(int32(v)) }}
	case TypeTime:
		return &numericAgg{op: op, make: func(v float64) Component { return Time(int32(v)) }}
	case TypeSwitch:
		return &boolAgg{op: op, make: func(v bool) Component { return Switch(v) }}
	case TypeBoolean:
		return &boolAgg{op: op, make: func(v bool) Component { return Boolean(v) }}
	case TypeColor:
		return &colorAgg{op: op}
	case TypeClimateMode:
		return &modeAgg{}
	default:
		return &emptyAgg{}
	}
}

func toFloat(c Component) (float64, bool) {
	switch v := c.(type) {
	case Integer:
		return float64(v), true
	case Dimmer:
		return float64(v), true
	case Real:
		return float64(v), true
	case Date:
		return float64(v), true
	case Time:
		return float64(v), true
	}
	return 0, false
}

// numericAgg handles Integer/Dimmer/Real/Date/Time, all of which reduce to
// a float64 lane for the purposes of Sum/Mean/Median/Max/Min.
type numericAgg struct {
	op    AggregationOp
	make  func(float64) Component
	vals  []float64 // only populated for Median
	sum   float64
	count int
	best  float64
	set   bool
}

func (a *numericAgg) Push(c Component) bool {
	v, ok := toFloat(c)
	if !ok {
		return true
	}
	a.count++
	a.sum += v

	switch a.op {
	case OpMedian:
		a.vals = append(a.vals, v)
	case OpMax:
		if !a.set || v > a.best || (math.IsNaN(v) && math.IsNaN(a.best)) {
			a.best, a.set = v, true
		}
	case OpMin:
		if !a.set || v < a.best || (math.IsNaN(v) && math.IsNaN(a.best)) {
			a.best, a.set = v, true
		}
	}
	return true
}

func (a *numericAgg) Result() (Component, bool) {
	if a.count == 0 {
		return nil, false
	}
	switch a.op {
	case OpSum:
		return a.make(a.sum), true
	case OpMean:
		return a.make(a.sum / float64(a.count)), true
	case OpMax, OpMin:
		return a.make(a.best), true
	case OpMedian:
		sort.Float64s(a.vals)
		n := len(a.vals)
		if n%2 == 1 {
			return a.make(a.vals[n/2]), true
		}
		return a.make((a.vals[n/2-1] + a.vals[n/2]) / 2), true
	}
	return nil, false
}

// boolAgg handles Switch/Boolean for Mean/Any/All.
//
// Mean over booleans returns true iff 2*true_count >= total (spec §4.1).
type boolAgg struct {
	op         AggregationOp
	make       func(bool) Component
	count      int
	trueCount  int
	shortValue bool
	short      bool
}

func (a *boolAgg) Push(c Component) bool {
	var v bool
	switch t := c.(type) {
	case Switch:
		v = bool(t)
	case Boolean:
		v = bool(t)
	default:
		return true
	}
	a.count++
	if v {
		a.trueCount++
	}

	switch a.op {
	case OpAny:
		if v {
			a.short, a.shortValue = true, true
			return false
		}
	case OpAll:
		if !v {
			a.short, a.shortValue = true, false
			return false
		}
	}
	return true
}

func (a *boolAgg) Result() (Component, bool) {
	if a.count == 0 {
		return nil, false
	}
	switch a.op {
	case OpAny:
		if a.short {
			return a.make(a.shortValue), true
		}
		return a.make(false), true
	case OpAll:
		if a.short {
			return a.make(a.shortValue), true
		}
		return a.make(true), true
	case OpMean:
		return a.make(2*a.trueCount >= a.count), true
	}
	return nil, false
}

// colorAgg handles Color for Mean/Median/Max/Min. Color's total order is
// lexicographic over (r, g, b); Mean averages channels in f64 (spec §4.1).
type colorAgg struct {
	op    AggregationOp
	vals  []Color
	sumR  float64
	sumG  float64
	sumB  float64
	count int
}

func colorLess(a, b Color) bool {
	if a.R != b.R {
		return a.R < b.R
	}
	if a.G != b.G {
		return a.G < b.G
	}
	return a.B < b.B
}

func (a *colorAgg) Push(c Component) bool {
	col, ok := c.(Color)
	if !ok {
		return true
	}
	a.count++
	a.sumR += float64(col.R)
	a.sumG += float64(col.G)
	a.sumB += float64(col.B)
	a.vals = append(a.vals, col)
	return true
}

func (a *colorAgg) Result() (Component, bool) {
	if a.count == 0 {
		return nil, false
	}
	switch a.op {
	case OpMean:
		return Color{
			R: uint8(a.sumR / float64(a.count)),
			G: uint8(a.sumG / float64(a.count)),
			B: uint8(a.sumB / float64(a.count)),
		}, true
	case OpMax, OpMin, OpMedian:
		sorted := append([]Color(nil), a.vals...)
		sort.Slice(sorted, func(i, j int) bool { return colorLess(sorted[i], sorted[j]) })
		switch a.op {
		case OpMax:
			return sorted[len(sorted)-1], true
		case OpMin:
			return sorted[0], true
		default: // OpMedian
			return sorted[len(sorted)/2], true
		}
	}
	return nil, false
}

// modeAgg implements the "Enum => Mean" capability from original_source's
// agg.rs as a plurality vote: the most frequently pushed value wins, ties
// broken by first occurrence.
type modeAgg struct {
	order  []string
	counts map[string]int
}

func (a *modeAgg) Push(c Component) bool {
	cm, ok := c.(ClimateMode)
	if !ok {
		return true
	}
	if a.counts == nil {
		a.counts = make(map[string]int)
	}
	s := string(cm)
	if _, seen := a.counts[s]; !seen {
		a.order = append(a.order, s)
	}
	a.counts[s]++
	return true
}

func (a *modeAgg) Result() (Component, bool) {
	if len(a.order) == 0 {
		return nil, false
	}
	best := a.order[0]
	for _, s := range a.order[1:] {
		if a.counts[s] > a.counts[best] {
			best = s
		}
	}
	return ClimateMode(best), true
}

type emptyAgg struct{}

func (emptyAgg) Push(Component) bool     { return true }
func (emptyAgg) Result() (Component, bool) { return nil, false }
