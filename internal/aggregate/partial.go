// Package aggregate provides grouped aggregation over in-memory row batches
// and the partition merge rules that make it safe to aggregate partitions
// independently and combine the results afterwards.
package aggregate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/arkilian/eventagg/internal/sketch"
	"github.com/arkilian/eventagg/pkg/types"
)

// AggregateType represents the type of aggregate function.
type AggregateType int

const (
	AggCount AggregateType = iota
	AggCountDistinct
	AggSum
	AggAvg
	AggConcat
	AggTopK
	AggApproxDistinct
)

// String returns the aggregate function name.
func (t AggregateType) String() string {
	switch t {
	case AggCount:
		return "COUNT"
	case AggCountDistinct:
		return "COUNT_DISTINCT"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggConcat:
		return "STRING_AGG"
	case AggTopK:
		return "TOP_K"
	case AggApproxDistinct:
		return "APPROX_COUNT_DISTINCT"
	}
	return "UNKNOWN"
}

// Options configures a single aggregate.
type Options struct {
	// Missing substitutes for absent SUM inputs. Nil skips them.
	Missing *decimal.Decimal

	// Separator joins STRING_AGG values; Descending reverses their order
	Separator  string
	Descending bool

	// Capacity and Order configure TOP_K
	Capacity int
	Order    []OrderKey

	// Precision configures APPROX_COUNT_DISTINCT
	Precision uint8
}

// PartialAggregate holds the accumulator state of one aggregate for one
// group. For AVG both Sum and Count are tracked so that partitions merge
// into a correctly weighted average.
type PartialAggregate struct {
	Type     AggregateType
	Count    int64                  // rows (COUNT) or accumulated inputs (SUM, AVG)
	Sum      decimal.Decimal        // running sum (SUM and AVG)
	Distinct map[string]types.Value // canonical key -> value (COUNT_DISTINCT, STRING_AGG)
	TopK     *TopKBuffer
	Sketch   *sketch.Sketch
	IsSet    bool // true once at least one value has been accumulated

	opts Options
}

// NewPartialAggregate creates a new empty partial aggregate of the given type.
func NewPartialAggregate(aggType AggregateType, opts Options) *PartialAggregate {
	p := &PartialAggregate{Type: aggType, opts: opts}
	switch aggType {
	case AggCountDistinct, AggConcat:
		p.Distinct = make(map[string]types.Value)
	case AggTopK:
		p.TopK = NewTopKBuffer(opts.Capacity, opts.Order)
	case AggApproxDistinct:
		p.Sketch = sketch.New(opts.Precision)
	}
	return p
}

// AccumulateRow counts one input row for COUNT(*).
func (p *PartialAggregate) AccumulateRow() {
	p.Count++
	p.IsSet = true
}

// Accumulate adds a single value. Null values are ignored by every
// aggregate except COUNT(*), which never sees a value.
func (p *PartialAggregate) Accumulate(value types.Value) {
	if value.IsNull() {
		return
	}

	switch p.Type {
	case AggCount:
		p.Count++
		p.IsSet = true

	case AggCountDistinct, AggConcat:
		p.Distinct[value.Key()] = value
		p.IsSet = true

	case AggApproxDistinct:
		p.Sketch.AddValue(value)
		p.IsSet = true
	}
}

// AccumulateNumber adds a numeric input to SUM or AVG. ok=false marks a
// missing input: AVG excludes it from the denominator, SUM substitutes the
// configured Missing value or skips it.
func (p *PartialAggregate) AccumulateNumber(n decimal.Decimal, ok bool) {
	if !ok {
		if p.Type != AggSum || p.opts.Missing == nil {
			return
		}
		n = *p.opts.Missing
	}
	p.Sum = p.Sum.Add(n)
	p.Count++
	p.IsSet = true
}

// AccumulateTuple offers one candidate to TOP_K.
func (p *PartialAggregate) AccumulateTuple(tuple []types.Value) {
	if tuple == nil {
		return
	}
	p.TopK.Insert(tuple)
	p.IsSet = true
}

// Result returns the final value of this partial aggregate:
//   - COUNT, COUNT_DISTINCT: int64
//   - SUM: decimal.NullDecimal (invalid when nothing was summed)
//   - AVG: decimal.NullDecimal (invalid for an empty group)
//   - STRING_AGG: string
//   - TOP_K: [][]types.Value, best first
//   - APPROX_COUNT_DISTINCT: sketch.Estimate
func (p *PartialAggregate) Result() interface{} {
	switch p.Type {
	case AggCount:
		return p.Count
	case AggCountDistinct:
		return int64(len(p.Distinct))
	case AggSum:
		return decimal.NullDecimal{Decimal: p.Sum, Valid: p.IsSet}
	case AggAvg:
		if p.Count == 0 {
			return decimal.NullDecimal{}
		}
		return decimal.NullDecimal{Decimal: p.Sum.Div(decimal.NewFromInt(p.Count)), Valid: true}
	case AggConcat:
		return p.concat()
	case AggTopK:
		return p.TopK.Entries()
	case AggApproxDistinct:
		return p.Sketch.Estimate()
	}
	return nil
}

// concat sorts the distinct values by value and joins them, so the output
// does not depend on arrival order.
func (p *PartialAggregate) concat() string {
	vals := make([]types.Value, 0, len(p.Distinct))
	for _, v := range p.Distinct {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool {
		c := types.Compare(vals[i], vals[j])
		if c == 0 {
			c = strings.Compare(vals[i].Key(), vals[j].Key())
		}
		if p.opts.Descending {
			return c > 0
		}
		return c < 0
	})

	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, p.opts.Separator)
}

// Clone returns a deep copy, so a merge never aliases another worker's state.
func (p *PartialAggregate) Clone() *PartialAggregate {
	cp := &PartialAggregate{
		Type:  p.Type,
		Count: p.Count,
		Sum:   p.Sum,
		IsSet: p.IsSet,
		opts:  p.opts,
	}
	if p.Distinct != nil {
		cp.Distinct = make(map[string]types.Value, len(p.Distinct))
		for k, v := range p.Distinct {
			cp.Distinct[k] = v
		}
	}
	if p.TopK != nil {
		cp.TopK = p.TopK.Clone()
	}
	if p.Sketch != nil {
		cp.Sketch = p.Sketch.Clone()
	}
	return cp
}

// NumericValue converts an int or float value to a decimal. Any other kind,
// null included, reports ok=false.
func NumericValue(v types.Value) (decimal.Decimal, bool) {
	switch v.Kind() {
	case types.KindInt:
		i, _ := v.AsInt()
		return decimal.NewFromInt(i), true
	case types.KindFloat:
		f, _ := v.AsFloat()
		return decimal.NewFromFloat(f), true
	}
	return decimal.Decimal{}, false
}
