package report

import (
	"context"

	"github.com/arkilian/eventagg/internal/aggregate"
	"github.com/arkilian/eventagg/internal/compose"
	"github.com/arkilian/eventagg/internal/engine"
	"github.com/arkilian/eventagg/pkg/types"
)

// DailyActivityRow is one day of activity.
type DailyActivityRow struct {
	Date     string `json:"event_date"`
	Events   int64  `json:"events"`
	Users    Count  `json:"users"`
	Sessions int64  `json:"sessions"`
}

// DailyActivity counts events, distinct users and distinct sessions per day.
func (r *Runner) DailyActivity(ctx context.Context, p Params) (*Output[DailyActivityRow], error) {
	res, err := engine.Run(ctx, r.engine, engine.Request[eventRow]{
		Name:       NameDailyActivity,
		Range:      p.Range,
		EventNames: p.EventNames,
		Map:        eventFields{session: true}.mapper(),
		NewTable: func() (*aggregate.Table[eventRow], error) {
			return aggregate.NewTable(eventDate,
				aggregate.CountRows[eventRow]("events"),
				aggregate.Distinct("users", eventUser, p.Approx, p.Precision),
				aggregate.CountDistinct("sessions", func(r eventRow) types.Value { return r.session }),
			)
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Output[DailyActivityRow]{Report: NameDailyActivity, Runs: []RunInfo{runInfo(res)}}
	for _, row := range res.Table.Rows() {
		out.Rows = append(out.Rows, DailyActivityRow{
			Date:     row.KeyValues[0].String(),
			Events:   row.Int("events"),
			Users:    countOf(row, "users"),
			Sessions: row.Int("sessions"),
		})
	}
	return out, nil
}

// DailyConversionRow is one day of purchase conversion.
type DailyConversionRow struct {
	Date              string `json:"event_date"`
	Users             int64  `json:"users"`
	Purchases         int64  `json:"purchases"`
	ConversionRatePct Fixed  `json:"conversion_rate_pct"`
}

type dailyCount struct {
	date  string
	count int64
}

// DailyConversion joins daily distinct users with daily distinct purchase
// transactions. Days without purchases report zero purchases and a zero
// rate; a rate is null only when a day has no users.
func (r *Runner) DailyConversion(ctx context.Context, p Params) (*Output[DailyConversionRow], error) {
	users, err := engine.Run(ctx, r.engine, engine.Request[eventRow]{
		Name:  NameDailyConversion,
		Range: p.Range,
		Map:   eventFields{}.mapper(),
		NewTable: func() (*aggregate.Table[eventRow], error) {
			return aggregate.NewTable(eventDate, aggregate.CountDistinct("users", eventUser))
		},
	})
	if err != nil {
		return nil, err
	}

	purchases, err := r.dailyPurchases(ctx, NameDailyConversion, p)
	if err != nil {
		return nil, err
	}

	base := make([]dailyCount, 0, users.Table.Len())
	for _, row := range users.Table.Rows() {
		base = append(base, dailyCount{date: row.KeyValues[0].String(), count: row.Int("users")})
	}
	detail := make([]dailyCount, 0, purchases.Table.Len())
	for _, row := range purchases.Table.Rows() {
		detail = append(detail, dailyCount{date: row.KeyValues[0].String(), count: row.Int("purchases")})
	}

	joined, err := compose.LeftJoin(base, byDate, detail, byDate, dailyCount{})
	if err != nil {
		return nil, err
	}

	out := &Output[DailyConversionRow]{
		Report: NameDailyConversion,
		Runs:   []RunInfo{runInfo(users), runInfo(purchases)},
	}
	for _, j := range joined {
		out.Rows = append(out.Rows, DailyConversionRow{
			Date:      j.Base.date,
			Users:     j.Base.count,
			Purchases: j.Detail.count,
			ConversionRatePct: Fixed{
				NullDecimal: compose.RatioInt(j.Detail.count, j.Base.count, p.RatioPlaces),
				Places:      p.RatioPlaces,
			},
		})
	}
	return out, nil
}

func byDate(c dailyCount) string { return c.date }

// dailyPurchases counts distinct transaction ids of purchase events per day.
func (r *Runner) dailyPurchases(ctx context.Context, name string, p Params) (*engine.Result[eventRow], error) {
	return engine.Run(ctx, r.engine, engine.Request[eventRow]{
		Name:       name,
		Range:      p.Range,
		EventNames: []string{types.EventPurchase},
		Map:        eventFields{txn: true}.mapper(),
		NewTable: func() (*aggregate.Table[eventRow], error) {
			return aggregate.NewTable(eventDate,
				aggregate.CountDistinct("purchases", func(r eventRow) types.Value { return r.txn }),
				aggregate.CountRows[eventRow]("purchase_events"),
			)
		},
	})
}
