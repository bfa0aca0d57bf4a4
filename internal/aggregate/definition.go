package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arkilian/eventagg/pkg/types"
)

// Definition describes one output aggregate over rows of type R. Exactly one
// of the extractors is used, depending on Type:
//   - COUNT: Arg, or nil for COUNT(*)
//   - COUNT_DISTINCT, STRING_AGG, APPROX_COUNT_DISTINCT: Arg
//   - SUM, AVG: Num
//   - TOP_K: Tuple
type Definition[R any] struct {
	Name    string
	Type    AggregateType
	Options Options

	Arg   func(R) types.Value
	Num   func(R) (decimal.Decimal, bool)
	Tuple func(R) []types.Value
}

func (d Definition[R]) validate() error {
	if d.Name == "" {
		return fmt.Errorf("aggregate: %s definition has no name", d.Type)
	}
	switch d.Type {
	case AggCount:
	case AggCountDistinct, AggConcat, AggApproxDistinct:
		if d.Arg == nil {
			return fmt.Errorf("aggregate: %s(%s) requires an argument", d.Type, d.Name)
		}
	case AggSum, AggAvg:
		if d.Num == nil {
			return fmt.Errorf("aggregate: %s(%s) requires a numeric argument", d.Type, d.Name)
		}
	case AggTopK:
		if d.Tuple == nil || len(d.Options.Order) == 0 {
			return fmt.Errorf("aggregate: %s(%s) requires a tuple and an order", d.Type, d.Name)
		}
		if d.Options.Capacity < 1 {
			return fmt.Errorf("aggregate: %s(%s) capacity must be positive, got %d",
				d.Type, d.Name, d.Options.Capacity)
		}
	default:
		return fmt.Errorf("aggregate: unknown aggregate type %d", d.Type)
	}
	return nil
}

// accumulate feeds one row into the partial aggregate built for d.
func (d Definition[R]) accumulate(p *PartialAggregate, row R) {
	switch d.Type {
	case AggCount:
		if d.Arg == nil {
			p.AccumulateRow()
		} else {
			p.Accumulate(d.Arg(row))
		}
	case AggSum, AggAvg:
		p.AccumulateNumber(d.Num(row))
	case AggTopK:
		p.AccumulateTuple(d.Tuple(row))
	default:
		p.Accumulate(d.Arg(row))
	}
}

// CountRows is COUNT(*).
func CountRows[R any](name string) Definition[R] {
	return Definition[R]{Name: name, Type: AggCount}
}

// CountDistinct is COUNT(DISTINCT arg); nulls are ignored.
func CountDistinct[R any](name string, arg func(R) types.Value) Definition[R] {
	return Definition[R]{Name: name, Type: AggCountDistinct, Arg: arg}
}

// ApproxCountDistinct estimates COUNT(DISTINCT arg) with a HyperLogLog sketch.
func ApproxCountDistinct[R any](name string, arg func(R) types.Value, precision uint8) Definition[R] {
	return Definition[R]{Name: name, Type: AggApproxDistinct, Arg: arg, Options: Options{Precision: precision}}
}

// Distinct picks CountDistinct or ApproxCountDistinct.
func Distinct[R any](name string, arg func(R) types.Value, approx bool, precision uint8) Definition[R] {
	if approx {
		return ApproxCountDistinct(name, arg, precision)
	}
	return CountDistinct(name, arg)
}

// Sum is SUM(num). Missing inputs count as zero when coalesce is set and are
// skipped otherwise.
func Sum[R any](name string, num func(R) (decimal.Decimal, bool), coalesce bool) Definition[R] {
	d := Definition[R]{Name: name, Type: AggSum, Num: num}
	if coalesce {
		zero := decimal.Zero
		d.Options.Missing = &zero
	}
	return d
}

// Avg is AVG(num); missing inputs are excluded from the denominator.
func Avg[R any](name string, num func(R) (decimal.Decimal, bool)) Definition[R] {
	return Definition[R]{Name: name, Type: AggAvg, Num: num}
}

// Concat is STRING_AGG(DISTINCT arg ORDER BY arg) joined with sep.
func Concat[R any](name string, arg func(R) types.Value, sep string, desc bool) Definition[R] {
	return Definition[R]{Name: name, Type: AggConcat, Arg: arg, Options: Options{Separator: sep, Descending: desc}}
}

// TopK retains the capacity best tuples per group under order.
func TopK[R any](name string, capacity int, order []OrderKey, tuple func(R) []types.Value) Definition[R] {
	return Definition[R]{Name: name, Type: AggTopK, Tuple: tuple, Options: Options{Capacity: capacity, Order: order}}
}
