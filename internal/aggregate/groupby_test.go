package aggregate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/eventagg/pkg/types"
)

type testRow struct {
	day    string
	user   types.Value
	amount types.Value
	item   string
	qty    int64
	ts     int64
}

func byDay(r testRow) []types.Value { return []types.Value{types.StringValue(r.day)} }

func testDefs() []Definition[testRow] {
	amount := func(r testRow) (decimal.Decimal, bool) { return NumericValue(r.amount) }
	return []Definition[testRow]{
		CountRows[testRow]("events"),
		CountDistinct("users", func(r testRow) types.Value { return r.user }),
		ApproxCountDistinct("users_approx", func(r testRow) types.Value { return r.user }, 12),
		Sum("revenue", amount, true),
		Sum("revenue_strict", amount, false),
		Avg("avg_amount", amount),
		Concat("items", func(r testRow) types.Value { return types.StringValue(r.item) }, ",", false),
		TopK("top_lines", 2, []OrderKey{{Index: 1, Desc: true}, {Index: 2}}, func(r testRow) []types.Value {
			return []types.Value{types.StringValue(r.item), types.IntValue(r.qty), types.IntValue(r.ts)}
		}),
	}
}

func newTestTable(t *testing.T) *Table[testRow] {
	t.Helper()
	tbl, err := NewTable(byDay, testDefs()...)
	require.NoError(t, err)
	return tbl
}

func sampleRows() []testRow {
	return []testRow{
		{day: "20240101", user: types.StringValue("u1"), amount: types.IntValue(10), item: "pear", qty: 1, ts: 1},
		{day: "20240101", user: types.StringValue("u2"), amount: types.Null(), item: "apple", qty: 3, ts: 2},
		{day: "20240101", user: types.Null(), amount: types.FloatValue(2.5), item: "pear", qty: 3, ts: 3},
		{day: "20240101", user: types.StringValue("u1"), amount: types.IntValue(5), item: "fig", qty: 2, ts: 4},
		{day: "20240102", user: types.StringValue("u3"), amount: types.Null(), item: "kiwi", qty: 1, ts: 5},
	}
}

func TestTable_Aggregates(t *testing.T) {
	tbl := newTestTable(t)
	require.NoError(t, tbl.AddAll(sampleRows()))
	require.Equal(t, 2, tbl.Len())

	day1, ok := tbl.Get(types.StringValue("20240101"))
	require.True(t, ok)

	assert.Equal(t, int64(4), day1.Int("events"))
	assert.Equal(t, int64(2), day1.Int("users"), "nulls are not counted")
	assert.Equal(t, uint64(2), day1.Approx("users_approx").Value)
	assert.Greater(t, day1.Approx("users_approx").RelativeError, 0.0)

	rev := day1.Decimal("revenue")
	require.True(t, rev.Valid)
	assert.True(t, rev.Decimal.Equal(decimal.RequireFromString("17.5")))

	avg := day1.Decimal("avg_amount")
	require.True(t, avg.Valid)
	// 17.5 / 3: the null amount is excluded from the denominator
	assert.Equal(t, "5.83", avg.Decimal.StringFixed(2))

	assert.Equal(t, "apple,fig,pear", day1.Text("items"))

	top := day1.Top("top_lines")
	require.Len(t, top, 2)
	assert.Equal(t, "apple", top[0][0].String())
	assert.Equal(t, "pear", top[1][0].String())

	day2, ok := tbl.Get(types.StringValue("20240102"))
	require.True(t, ok)
	assert.True(t, day2.Decimal("revenue").Valid, "coalesced sum is zero, not null")
	assert.True(t, day2.Decimal("revenue").Decimal.IsZero())
	assert.False(t, day2.Decimal("revenue_strict").Valid)
	assert.False(t, day2.Decimal("avg_amount").Valid)
}

func TestTable_ConcatIsArrivalOrderIndependent(t *testing.T) {
	rows := sampleRows()
	forward := newTestTable(t)
	require.NoError(t, forward.AddAll(rows))

	backward := newTestTable(t)
	for i := len(rows) - 1; i >= 0; i-- {
		require.NoError(t, backward.Add(rows[i]))
	}

	f, _ := forward.Get(types.StringValue("20240101"))
	b, _ := backward.Get(types.StringValue("20240101"))
	assert.Equal(t, f.Text("items"), b.Text("items"))
}

func TestTable_RowsOrderedByKey(t *testing.T) {
	tbl := newTestTable(t)
	rows := sampleRows()
	require.NoError(t, tbl.Add(rows[4]))
	require.NoError(t, tbl.Add(rows[0]))

	out := tbl.Rows()
	require.Len(t, out, 2)
	assert.Equal(t, "20240101", out[0].KeyValues[0].String())
	assert.Equal(t, "20240102", out[1].KeyValues[0].String())
}

func TestTable_Finalize(t *testing.T) {
	tbl := newTestTable(t)
	tbl.Finalize()
	assert.ErrorIs(t, tbl.Add(sampleRows()[0]), ErrSealed)
	assert.ErrorIs(t, tbl.Merge(newTestTable(t)), ErrSealed)
}

func TestNewTable_Validation(t *testing.T) {
	_, err := NewTable(byDay, CountRows[testRow]("n"), CountRows[testRow]("n"))
	assert.Error(t, err, "duplicate names")

	_, err = NewTable(byDay, Definition[testRow]{Name: "x", Type: AggSum})
	assert.Error(t, err, "sum without numeric argument")

	_, err = NewTable(byDay, TopK[testRow]("t", 0, []OrderKey{{Index: 0}}, func(testRow) []types.Value { return nil }))
	assert.Error(t, err, "zero capacity")

	_, err = NewTable[testRow](nil)
	assert.Error(t, err)
}

func TestMergeTables_MatchesSingleTable(t *testing.T) {
	rows := sampleRows()
	whole := newTestTable(t)
	require.NoError(t, whole.AddAll(rows))

	p1, p2 := newTestTable(t), newTestTable(t)
	require.NoError(t, p1.AddAll(rows[:2]))
	require.NoError(t, p2.AddAll(rows[2:]))

	merged, err := MergeTables(p1, p2)
	require.NoError(t, err)

	for _, want := range whole.Rows() {
		got, ok := merged.Get(want.KeyValues...)
		require.True(t, ok)
		assert.Equal(t, want.Int("events"), got.Int("events"))
		assert.Equal(t, want.Int("users"), got.Int("users"))
		assert.True(t, want.Decimal("revenue").Decimal.Equal(got.Decimal("revenue").Decimal))
		assert.Equal(t, want.Text("items"), got.Text("items"))
		assert.Equal(t, want.Approx("users_approx"), got.Approx("users_approx"))
		assert.Equal(t, want.Top("top_lines"), got.Top("top_lines"))
	}

	// inputs are untouched
	d, _ := p1.Get(types.StringValue("20240101"))
	assert.Equal(t, int64(2), d.Int("events"))
}

func TestMergePartials(t *testing.T) {
	a := NewPartialAggregate(AggAvg, Options{})
	a.AccumulateNumber(decimal.NewFromInt(10), true)
	b := NewPartialAggregate(AggAvg, Options{})
	b.AccumulateNumber(decimal.NewFromInt(20), true)
	b.AccumulateNumber(decimal.NewFromInt(30), true)

	merged, err := MergePartials([]*PartialAggregate{a, b})
	require.NoError(t, err)
	avg := merged.Result().(decimal.NullDecimal)
	assert.True(t, avg.Decimal.Equal(decimal.NewFromInt(20)), "weighted average")
	assert.Equal(t, int64(1), a.Count, "inputs are untouched")

	_, err = MergePartials([]*PartialAggregate{a, NewPartialAggregate(AggSum, Options{})})
	assert.Error(t, err)
}

func TestProperty_ExactMergeIsOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	toRows := func(amounts []float64, users []int) []testRow {
		rows := make([]testRow, len(amounts))
		for i, a := range amounts {
			u := types.Null()
			if i < len(users) {
				u = types.IntValue(int64(users[i]))
			}
			rows[i] = testRow{day: "d", user: u, amount: types.FloatValue(a), item: "i", qty: 1, ts: int64(i)}
		}
		return rows
	}

	properties.Property("merging two partitions in either order gives identical counts and sums", prop.ForAll(
		func(a1, a2 []float64, u1, u2 []int) bool {
			p1, _ := NewTable(byDay, testDefs()...)
			p2, _ := NewTable(byDay, testDefs()...)
			_ = p1.AddAll(toRows(a1, u1))
			_ = p2.AddAll(toRows(a2, u2))

			x, err1 := MergeTables(p1, p2)
			y, err2 := MergeTables(p2, p1)
			if err1 != nil || err2 != nil || x.Len() != y.Len() {
				return false
			}
			for _, rx := range x.Rows() {
				ry, ok := y.Get(rx.KeyValues...)
				if !ok {
					return false
				}
				if rx.Int("events") != ry.Int("events") || rx.Int("users") != ry.Int("users") {
					return false
				}
				if !rx.Decimal("revenue").Decimal.Equal(ry.Decimal("revenue").Decimal) {
					return false
				}
				if rx.Approx("users_approx") != ry.Approx("users_approx") {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
		gen.SliceOf(gen.IntRange(0, 50)),
		gen.SliceOf(gen.IntRange(0, 50)),
	))

	properties.TestingRun(t)
}
