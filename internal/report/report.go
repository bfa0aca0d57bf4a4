// Package report builds the reporting tables on top of the engine: daily
// activity and conversion, ranked top events and pages, rolling purchase
// averages, item rollups and session carts.
package report

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/arkilian/eventagg/internal/aggregate"
	"github.com/arkilian/eventagg/internal/config"
	"github.com/arkilian/eventagg/internal/engine"
	apperrors "github.com/arkilian/eventagg/internal/errors"
	"github.com/arkilian/eventagg/internal/observability"
	"github.com/arkilian/eventagg/internal/sketch"
	"github.com/arkilian/eventagg/pkg/types"
)

// Report names accepted by Run.
const (
	NameDailyActivity    = "daily_activity"
	NameDailyConversion  = "daily_conversion"
	NameTopEvents        = "top_events"
	NameTopPages         = "top_pages"
	NameRollingPurchases = "rolling_purchases"
	NameItemRollup       = "item_rollup"
	NameSessionCarts     = "session_carts"
)

// Names lists every report.
var Names = []string{
	NameDailyActivity,
	NameDailyConversion,
	NameTopEvents,
	NameTopPages,
	NameRollingPurchases,
	NameItemRollup,
	NameSessionCarts,
}

// Params are the invocation parameters shared by all reports.
type Params struct {
	Range       types.DateRange
	EventNames  []string
	TopN        int
	TopK        int
	WindowSize  int
	Approx      bool
	Precision   uint8
	RatioPlaces int32
}

// ParamsFromConfig converts report configuration to Params.
func ParamsFromConfig(cfg config.ReportConfig) Params {
	return Params{
		Range:       types.DateRange{Start: cfg.StartDate, End: cfg.EndDate},
		EventNames:  cfg.EventNames,
		TopN:        cfg.TopN,
		TopK:        cfg.TopK,
		WindowSize:  cfg.WindowSize,
		Approx:      cfg.ApproxDistinct,
		Precision:   cfg.Precision,
		RatioPlaces: cfg.RatioPlaces,
	}
}

// RunInfo describes one engine run behind a report.
type RunInfo struct {
	RunID             string                 `json:"run_id"`
	Partitions        []string               `json:"partitions"`
	MissingPartitions []string               `json:"missing_partitions,omitempty"`
	RejectedRecords   int64                  `json:"rejected_records"`
	NulledRecords     int64                  `json:"nulled_records"`
	Stats             observability.Snapshot `json:"stats"`
}

func runInfo[R any](res *engine.Result[R]) RunInfo {
	return RunInfo{
		RunID:             res.RunID,
		Partitions:        res.Partitions,
		MissingPartitions: res.MissingPartitions,
		RejectedRecords:   res.RejectedRecords,
		NulledRecords:     res.NulledRecords,
		Stats:             res.Stats,
	}
}

// Output holds the rows of one report and the runs that produced them.
type Output[T any] struct {
	Report string    `json:"report"`
	Rows   []T       `json:"rows"`
	Runs   []RunInfo `json:"runs"`
}

// Count is a distinct count, exact or estimated. An estimate always
// carries its relative error bound.
type Count struct {
	Value         int64   `json:"value"`
	Approximate   bool    `json:"approximate,omitempty"`
	RelativeError float64 `json:"relative_error,omitempty"`
}

func countOf(row *aggregate.AggregateRow, name string) Count {
	switch v := row.Result(name).(type) {
	case int64:
		return Count{Value: v}
	case sketch.Estimate:
		return Count{Value: int64(v.Value), Approximate: true, RelativeError: v.RelativeError}
	}
	return Count{}
}

// Fixed is a nullable decimal rendered with a fixed number of places.
type Fixed struct {
	decimal.NullDecimal
	Places int32
}

// String renders the value, or "null".
func (f Fixed) String() string {
	if !f.Valid {
		return "null"
	}
	return f.Decimal.StringFixed(f.Places)
}

// MarshalJSON renders a JSON number with exactly Places decimals, or null.
func (f Fixed) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(f.Decimal.StringFixed(f.Places)), nil
}

// UnmarshalJSON accepts a number or null.
func (f *Fixed) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		f.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	f.NullDecimal = decimal.NewNullDecimal(d)
	if exp := d.Exponent(); exp < 0 {
		f.Places = -exp
	}
	return nil
}

// Runner runs reports with one engine.
type Runner struct {
	engine *engine.Engine
}

// NewRunner creates a report runner.
func NewRunner(e *engine.Engine) *Runner {
	return &Runner{engine: e}
}

// Run runs the named report and returns its Output as an interface value
// suitable for JSON encoding.
func (r *Runner) Run(ctx context.Context, name string, p Params) (interface{}, error) {
	switch name {
	case NameDailyActivity:
		return r.DailyActivity(ctx, p)
	case NameDailyConversion:
		return r.DailyConversion(ctx, p)
	case NameTopEvents:
		return r.TopEvents(ctx, p)
	case NameTopPages:
		return r.TopPages(ctx, p)
	case NameRollingPurchases:
		return r.RollingPurchases(ctx, p)
	case NameItemRollup:
		return r.ItemRollup(ctx, p)
	case NameSessionCarts:
		return r.SessionCarts(ctx, p)
	}
	return nil, apperrors.NewValidationError(apperrors.CodeInvalidParameter,
		"unknown report "+strconv.Quote(name))
}

func dateKey(date string) []types.Value { return []types.Value{types.StringValue(date)} }
