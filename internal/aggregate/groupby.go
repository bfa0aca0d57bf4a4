package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/arkilian/eventagg/internal/sketch"
	"github.com/arkilian/eventagg/pkg/types"
)

// ErrSealed is returned when rows are added to, or merged into, a finalized table.
var ErrSealed = errors.New("aggregate: table is finalized")

// GroupKey is a string representation of a GROUP BY key tuple, used as a map
// key for combining groups across partitions.
type GroupKey string

// GroupKeyOf produces a deterministic key from the group values.
func GroupKeyOf(vals []types.Value) GroupKey {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.Key()
	}
	return GroupKey(strings.Join(parts, "\x1f"))
}

// AggregateRow holds the accumulators of one group.
type AggregateRow struct {
	Key        GroupKey
	KeyValues  []types.Value       // the actual GROUP BY values
	Aggregates []*PartialAggregate // one per definition

	names map[string]int
}

// Partial returns the accumulator of the named aggregate, or nil.
func (r *AggregateRow) Partial(name string) *PartialAggregate {
	if i, ok := r.names[name]; ok {
		return r.Aggregates[i]
	}
	return nil
}

// Result returns the final value of the named aggregate, or nil.
func (r *AggregateRow) Result(name string) interface{} {
	if p := r.Partial(name); p != nil {
		return p.Result()
	}
	return nil
}

// Int returns a COUNT or COUNT_DISTINCT result.
func (r *AggregateRow) Int(name string) int64 {
	n, _ := r.Result(name).(int64)
	return n
}

// Decimal returns a SUM or AVG result.
func (r *AggregateRow) Decimal(name string) decimal.NullDecimal {
	d, _ := r.Result(name).(decimal.NullDecimal)
	return d
}

// Text returns a STRING_AGG result.
func (r *AggregateRow) Text(name string) string {
	s, _ := r.Result(name).(string)
	return s
}

// Top returns a TOP_K result, best first.
func (r *AggregateRow) Top(name string) [][]types.Value {
	t, _ := r.Result(name).([][]types.Value)
	return t
}

// Approx returns an APPROX_COUNT_DISTINCT result.
func (r *AggregateRow) Approx(name string) sketch.Estimate {
	e, _ := r.Result(name).(sketch.Estimate)
	return e
}

// Table maps group keys to accumulators. A Table is owned by one worker:
// it is not safe for concurrent use, and partition-local tables are combined
// only through Merge once their scans are complete.
type Table[R any] struct {
	groupBy func(R) []types.Value
	defs    []Definition[R]
	names   map[string]int
	groups  map[GroupKey]*AggregateRow
	sealed  bool
}

// NewTable creates a table grouping rows by groupBy and computing defs per group.
func NewTable[R any](groupBy func(R) []types.Value, defs ...Definition[R]) (*Table[R], error) {
	if groupBy == nil {
		return nil, fmt.Errorf("aggregate: group-by function is required")
	}
	names := make(map[string]int, len(defs))
	for i, d := range defs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := names[d.Name]; dup {
			return nil, fmt.Errorf("aggregate: duplicate aggregate name %q", d.Name)
		}
		names[d.Name] = i
	}
	return &Table[R]{
		groupBy: groupBy,
		defs:    defs,
		names:   names,
		groups:  make(map[GroupKey]*AggregateRow),
	}, nil
}

func (t *Table[R]) emptyCopy() *Table[R] {
	return &Table[R]{
		groupBy: t.groupBy,
		defs:    t.defs,
		names:   t.names,
		groups:  make(map[GroupKey]*AggregateRow),
	}
}

func (t *Table[R]) newRow(key GroupKey, keyVals []types.Value) *AggregateRow {
	aggs := make([]*PartialAggregate, len(t.defs))
	for i, d := range t.defs {
		aggs[i] = NewPartialAggregate(d.Type, d.Options)
	}
	return &AggregateRow{Key: key, KeyValues: keyVals, Aggregates: aggs, names: t.names}
}

// Add accumulates one row into its group, creating the group on first sight.
func (t *Table[R]) Add(row R) error {
	if t.sealed {
		return ErrSealed
	}
	keyVals := t.groupBy(row)
	key := GroupKeyOf(keyVals)

	gr, exists := t.groups[key]
	if !exists {
		gr = t.newRow(key, keyVals)
		t.groups[key] = gr
	}
	for i, d := range t.defs {
		d.accumulate(gr.Aggregates[i], row)
	}
	return nil
}

// AddAll accumulates a batch of rows.
func (t *Table[R]) AddAll(rows []R) error {
	for _, row := range rows {
		if err := t.Add(row); err != nil {
			return err
		}
	}
	return nil
}

// Merge folds other's groups into t. Groups seen for the first time are
// cloned, so t never shares accumulator state with other.
func (t *Table[R]) Merge(other *Table[R]) error {
	if t.sealed {
		return ErrSealed
	}
	if len(other.defs) != len(t.defs) {
		return fmt.Errorf("aggregate: cannot merge tables with %d and %d aggregates",
			len(other.defs), len(t.defs))
	}
	for key, src := range other.groups {
		dst, exists := t.groups[key]
		if !exists {
			cloned := &AggregateRow{
				Key:        key,
				KeyValues:  src.KeyValues,
				Aggregates: make([]*PartialAggregate, len(src.Aggregates)),
				names:      t.names,
			}
			for i, agg := range src.Aggregates {
				cloned.Aggregates[i] = agg.Clone()
			}
			t.groups[key] = cloned
			continue
		}
		for i, agg := range src.Aggregates {
			if err := mergeInto(dst.Aggregates[i], agg); err != nil {
				return fmt.Errorf("aggregate %q: %w", t.defs[i].Name, err)
			}
		}
	}
	return nil
}

// Finalize seals the table; afterwards it is read-only.
func (t *Table[R]) Finalize() *Table[R] {
	t.sealed = true
	return t
}

// Len returns the number of groups.
func (t *Table[R]) Len() int { return len(t.groups) }

// Get returns the group with the given key values.
func (t *Table[R]) Get(keyVals ...types.Value) (*AggregateRow, bool) {
	r, ok := t.groups[GroupKeyOf(keyVals)]
	return r, ok
}

// Rows returns every group ordered by its key values, so output order does
// not depend on arrival order or partition count.
func (t *Table[R]) Rows() []*AggregateRow {
	rows := make([]*AggregateRow, 0, len(t.groups))
	for _, r := range t.groups {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		return compareKeys(rows[i].KeyValues, rows[j].KeyValues) < 0
	})
	return rows
}

func compareKeys(a, b []types.Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := types.Compare(a[i], b[i]); c != 0 {
			return c
		}
		if c := strings.Compare(a[i].Key(), b[i].Key()); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
