package report

import (
	"context"

	"github.com/arkilian/eventagg/internal/aggregate"
	"github.com/arkilian/eventagg/internal/compose"
	"github.com/arkilian/eventagg/internal/engine"
	"github.com/arkilian/eventagg/internal/window"
	"github.com/arkilian/eventagg/pkg/types"
)

// RankedRow is one (date, dimension) count with its rank within the date.
type RankedRow struct {
	Date  string `json:"event_date"`
	Key   string `json:"key"`
	Count int64  `json:"count"`
	Rank  int    `json:"rank"`
}

// TopEvents ranks event names by daily event count and keeps rank <= TopN.
func (r *Runner) TopEvents(ctx context.Context, p Params) (*Output[RankedRow], error) {
	return r.ranked(ctx, p, NameTopEvents, p.EventNames, eventFields{},
		func(row eventRow) types.Value { return types.StringValue(row.name) })
}

// TopPages ranks page_location values by daily page_view count and keeps
// rank <= TopN. Page views without a location are not ranked.
func (r *Runner) TopPages(ctx context.Context, p Params) (*Output[RankedRow], error) {
	return r.ranked(ctx, p, NameTopPages, []string{types.EventPageView}, eventFields{page: true},
		func(row eventRow) types.Value { return row.page })
}

func (r *Runner) ranked(
	ctx context.Context,
	p Params,
	name string,
	eventNames []string,
	fields eventFields,
	dim func(eventRow) types.Value,
) (*Output[RankedRow], error) {
	mapRow := fields.mapper()
	res, err := engine.Run(ctx, r.engine, engine.Request[eventRow]{
		Name:       name,
		Range:      p.Range,
		EventNames: eventNames,
		Map: func(f *engine.Fields) []eventRow {
			rows := mapRow(f)
			if dim(rows[0]).IsNull() {
				return nil
			}
			return rows
		},
		NewTable: func() (*aggregate.Table[eventRow], error) {
			return aggregate.NewTable(
				func(row eventRow) []types.Value { return []types.Value{types.StringValue(row.date), dim(row)} },
				aggregate.CountRows[eventRow]("count"),
			)
		},
	})
	if err != nil {
		return nil, err
	}

	counts := make([]RankedRow, 0, res.Table.Len())
	for _, row := range res.Table.Rows() {
		counts = append(counts, RankedRow{
			Date:  row.KeyValues[0].String(),
			Key:   row.KeyValues[1].String(),
			Count: row.Int("count"),
		})
	}

	ranked := window.FilterRank(window.Rank(counts,
		func(row RankedRow) string { return row.Date },
		func(row RankedRow) float64 { return float64(row.Count) },
	), p.TopN)

	out := &Output[RankedRow]{Report: name, Runs: []RunInfo{runInfo(res)}}
	for _, rr := range ranked {
		row := rr.Row
		row.Rank = rr.Rank
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// RollingRow is one day's purchase count with its trailing average.
type RollingRow struct {
	Date          string  `json:"event_date"`
	Purchases     int64   `json:"purchases"`
	MovingAverage float64 `json:"moving_average"`
}

// RollingPurchases computes daily distinct purchase transactions and their
// trailing WindowSize-day moving average. Every served date is included,
// with zero purchases where none occurred.
func (r *Runner) RollingPurchases(ctx context.Context, p Params) (*Output[RollingRow], error) {
	res, err := r.dailyPurchases(ctx, NameRollingPurchases, p)
	if err != nil {
		return nil, err
	}

	base := make([]dailyCount, len(res.Partitions))
	for i, d := range res.Partitions {
		base[i] = dailyCount{date: d}
	}
	detail := make([]dailyCount, 0, res.Table.Len())
	for _, row := range res.Table.Rows() {
		detail = append(detail, dailyCount{date: row.KeyValues[0].String(), count: row.Int("purchases")})
	}
	joined, err := compose.LeftJoin(base, byDate, detail, byDate, dailyCount{})
	if err != nil {
		return nil, err
	}

	daily := make([]dailyCount, len(joined))
	for i, j := range joined {
		daily[i] = dailyCount{date: j.Base.date, count: j.Detail.count}
	}
	averaged, err := window.MovingAverageBy(daily,
		nil,
		func(c dailyCount) string { return c.date },
		func(c dailyCount) float64 { return float64(c.count) },
		p.WindowSize)
	if err != nil {
		return nil, err
	}

	out := &Output[RollingRow]{Report: NameRollingPurchases, Runs: []RunInfo{runInfo(res)}}
	for _, a := range averaged {
		out.Rows = append(out.Rows, RollingRow{
			Date:          a.Row.date,
			Purchases:     a.Row.count,
			MovingAverage: a.Average,
		})
	}
	return out, nil
}
