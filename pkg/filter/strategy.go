package filter

import (
	"math"

	"github.com/matte1782/edgevec-sub002/pkg/metadata"
)

// Strategy is the plan chosen for evaluating a filter alongside a vector
// search, per this package's cost model.
type Strategy int

const (
	// StrategyBypass means the filter is a tautology and can be skipped
	// entirely.
	StrategyBypass Strategy = iota
	// StrategyEmpty means the filter is a contradiction; the search
	// short-circuits to an empty result set.
	StrategyEmpty
	// StrategyPreFilter materializes the admitted candidate ID set first
	// and scans it linearly, bypassing the graph traversal's ef budget.
	StrategyPreFilter
	// StrategyPostFilter runs an ordinary (unfiltered) search with an
	// oversampled ef and discards results that fail the filter.
	StrategyPostFilter
	// StrategyInGraph evaluates the filter during HNSW candidate
	// admission, neither fully pre- nor post-filtering.
	StrategyInGraph
)

const (
	// SelectivitySampleSize caps how many metadata records are sampled to
	// estimate selectivity before falling back to a static heuristic.
	SelectivitySampleSize = 200
	// PreFilterThreshold is the selectivity below which pre-filtering wins.
	PreFilterThreshold = 0.1
	// PostFilterThreshold is the selectivity above which post-filtering wins.
	PostFilterThreshold = 0.5
	// MaxOversample caps the ef oversample factor for post-filtering.
	MaxOversample = 10
	// EfCap is the absolute ceiling on the oversampled ef passed to the
	// graph, regardless of how small the estimated selectivity is.
	EfCap = 1024
)

// Plan is the result of strategy selection: which approach to use and,
// for post-filtering, the oversample factor that EffectiveEf applies to
// the graph's ef.
type Plan struct {
	Strategy    Strategy
	Selectivity float64
	Oversample  int
}

// SelectStrategy chooses a filtering plan for expr against the given
// metadata records. ids supplies the sample population used for
// selectivity estimation; when empty, a static operator-kind heuristic is
// used instead.
func SelectStrategy(expr Expr, records map[uint64]metadata.Record, ids []uint64) Plan {
	switch foldConstant(expr) {
	case constTrue:
		return Plan{Strategy: StrategyBypass, Selectivity: 1.0}
	case constFalse:
		return Plan{Strategy: StrategyEmpty, Selectivity: 0.0}
	}

	s := estimateSelectivity(expr, records, ids)

	var strat Strategy
	switch {
	case s < PreFilterThreshold:
		strat = StrategyPreFilter
	case s > PostFilterThreshold:
		strat = StrategyPostFilter
	default:
		strat = StrategyInGraph
	}

	return Plan{Strategy: strat, Selectivity: s, Oversample: oversampleFactor(s)}
}

// oversampleFactor computes min(MaxOversample, max(1, ceil(1/s))).
func oversampleFactor(s float64) int {
	if s <= 0 {
		return MaxOversample
	}
	f := int(math.Ceil(1.0 / s))
	if f < 1 {
		f = 1
	}
	if f > MaxOversample {
		f = MaxOversample
	}
	return f
}

// EffectiveEf applies a plan's oversample factor to a base ef, capped at
// EfCap.
func EffectiveEf(baseEf, oversample int) int {
	ef := baseEf * oversample
	if ef > EfCap {
		ef = EfCap
	}
	if ef < baseEf {
		ef = baseEf
	}
	return ef
}

type constResult int

const (
	constUnknown constResult = iota
	constTrue
	constFalse
)

// foldConstant detects a filter that is trivially a tautology or
// contradiction independent of any record: an empty And/Or, or an Or/And
// whose operands are themselves constant-folded to a dominating value.
func foldConstant(expr Expr) constResult {
	switch e := expr.(type) {
	case And:
		if len(e.Operands) == 0 {
			return constTrue
		}
		allTrue := true
		for _, op := range e.Operands {
			switch foldConstant(op) {
			case constFalse:
				return constFalse
			case constUnknown:
				allTrue = false
			}
		}
		if allTrue {
			return constTrue
		}
		return constUnknown

	case Or:
		if len(e.Operands) == 0 {
			return constFalse
		}
		allFalse := true
		for _, op := range e.Operands {
			switch foldConstant(op) {
			case constTrue:
				return constTrue
			case constUnknown:
				allFalse = false
			}
		}
		if allFalse {
			return constFalse
		}
		return constUnknown

	case Not:
		switch foldConstant(e.Operand) {
		case constTrue:
			return constFalse
		case constFalse:
			return constTrue
		default:
			return constUnknown
		}

	default:
		return constUnknown
	}
}

// estimateSelectivity samples up to SelectivitySampleSize records and
// evaluates expr against each; if no records are available it falls back
// to a static heuristic keyed on the filter's operator shape.
func estimateSelectivity(expr Expr, records map[uint64]metadata.Record, ids []uint64) float64 {
	if len(ids) == 0 || len(records) == 0 {
		return staticSelectivity(expr)
	}

	n := len(ids)
	if n > SelectivitySampleSize {
		n = SelectivitySampleSize
	}
	admitted := 0
	for i := 0; i < n; i++ {
		rec := records[ids[i]]
		if Eval(expr, rec) {
			admitted++
		}
	}
	if n == 0 {
		return staticSelectivity(expr)
	}
	return float64(admitted) / float64(n)
}

// staticSelectivity applies an operator-kind heuristic when no sample
// population is available: equality comparisons are assumed
// highly selective, ordering comparisons moderately so, and negation
// inverts its operand's estimate.
func staticSelectivity(expr Expr) float64 {
	switch e := expr.(type) {
	case Cmp:
		switch e.Op {
		case OpEq:
			return 0.01
		case OpGt, OpLt, OpGe, OpLe:
			return 0.3
		default:
			return 0.3
		}
	case IsNull:
		if e.Negated {
			return 0.9
		}
		return 0.1
	case In:
		return 0.01 * float64(len(e.Values))
	case Not:
		return 1 - staticSelectivity(e.Operand)
	case And:
		s := 1.0
		for _, op := range e.Operands {
			s *= staticSelectivity(op)
		}
		return s
	case Or:
		s := 0.0
		for _, op := range e.Operands {
			s += staticSelectivity(op)
		}
		if s > 1 {
			s = 1
		}
		return s
	default:
		return 0.3
	}
}
