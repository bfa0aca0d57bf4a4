// Package engine runs a grouped aggregation over a date range of partitions.
//
// Each date partition is scanned and aggregated into a partition-local table
// by its own worker. After every scan has finished, the local tables are
// merged into the final table in ascending date order. A failed partition
// scan is retried on its own; partitions that already succeeded are never
// rescanned.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/arkilian/eventagg/internal/aggregate"
	apperrors "github.com/arkilian/eventagg/internal/errors"
	"github.com/arkilian/eventagg/internal/logging"
	"github.com/arkilian/eventagg/internal/observability"
	"github.com/arkilian/eventagg/internal/source"
	"github.com/arkilian/eventagg/pkg/types"
)

// Options configures partition-parallel execution.
type Options struct {
	// Concurrency is the number of partitions scanned in parallel
	Concurrency int

	// MaxRetries is the number of retries of a retryable partition failure
	MaxRetries int

	// RetryBackoff is the delay before the first retry; it doubles per attempt
	RetryBackoff time.Duration

	// BestEffort returns partial results instead of failing when
	// partitions are missing
	BestEffort bool

	// Policy handles type mismatches in derived fields
	Policy Policy
}

// DefaultOptions returns the default execution options.
func DefaultOptions() Options {
	return Options{
		Concurrency:  4,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// Request describes one aggregation run.
type Request[R any] struct {
	// Name labels logs and metrics
	Name string

	// Range is the inclusive date range
	Range types.DateRange

	// EventNames restricts the scan; empty means all events
	EventNames []string

	// Map turns one event into zero or more rows
	Map func(f *Fields) []R

	// NewTable creates an empty table; it is called once per partition
	// attempt and once for the merged result
	NewTable func() (*aggregate.Table[R], error)
}

// Result is the output of a run.
type Result[R any] struct {
	RunID string

	// Table is the finalized merged table
	Table *aggregate.Table[R]

	// Partitions lists the dates that contributed, ascending
	Partitions []string

	// MissingPartitions lists dates that could not be served (best effort only)
	MissingPartitions []string

	// RejectedRecords counts records dropped by PolicyReject
	RejectedRecords int64

	// NulledRecords counts records kept with nulled fields under PolicyNull
	NulledRecords int64

	Stats observability.Snapshot
}

// Engine executes requests against a provider.
type Engine struct {
	provider source.Provider
	opts     Options
}

// New creates an engine scanning provider.
func New(provider source.Provider, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Engine{provider: provider, opts: opts}
}

// Options returns the engine's execution options.
func (e *Engine) Options() Options { return e.opts }

type partitionResult[R any] struct {
	table    *aggregate.Table[R]
	events   int64
	rejected int64
	nulled   int64
}

// Run executes req. Without BestEffort, any partition that cannot be served
// after retries fails the run with PARTITIONS_MISSING naming every such date.
func Run[R any](ctx context.Context, e *Engine, req Request[R]) (*Result[R], error) {
	if req.Map == nil || req.NewTable == nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidParameter, "request needs Map and NewTable")
	}
	keys, err := req.Range.Partitions()
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidDateRange, err.Error())
	}
	// fail fast on a bad table definition
	if _, err := req.NewTable(); err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidParameter, err.Error())
	}

	runID := uuid.New().String()
	stats := observability.NewRunStats(req.Name)
	logger := logging.FromContext(ctx).With("run_id", runID, "report", req.Name)
	ctx = logging.WithLogger(ctx, logger)

	logger.Infow("Starting run",
		"start", req.Range.Start, "end", req.Range.End,
		"partitions", len(keys), "concurrency", e.opts.Concurrency)

	locals := make([]*partitionResult[R], len(keys))
	failures := make([]error, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, key := range keys {
		g.Go(func() error {
			res, err := scanWithRetry(gctx, e, req, key, stats)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if apperrors.GetCategory(err) != apperrors.ErrCategorySource {
					return err
				}
				logging.FromContext(gctx).Errorw("Partition failed", "partition", key.Date, "error", err)
				stats.RecordMissing(key.Date)
				failures[i] = err
				return nil
			}
			locals[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var missing []string
	for i, f := range failures {
		if f != nil {
			missing = append(missing, keys[i].Date)
		}
	}
	if len(missing) > 0 && !e.opts.BestEffort {
		return nil, apperrors.NewEngineError(apperrors.CodePartitionsMissing,
			fmt.Sprintf("partitions missing: %s", strings.Join(missing, ", ")),
			multierr.Combine(failures...)).
			WithDetails(map[string]interface{}{"partitions": missing, "run_id": runID})
	}
	if len(missing) > 0 {
		logger.Warnw("Returning partial results", "missing_partitions", missing)
	}

	// barrier passed: merge partition-local tables in date order
	final, err := req.NewTable()
	if err != nil {
		return nil, apperrors.NewInternalError("create result table", err)
	}
	result := &Result[R]{RunID: runID, MissingPartitions: missing}
	for i, local := range locals {
		if local == nil {
			continue
		}
		if err := final.Merge(local.table); err != nil {
			return nil, apperrors.NewInternalError(fmt.Sprintf("merge partition %s", keys[i].Date), err)
		}
		result.Partitions = append(result.Partitions, keys[i].Date)
		result.RejectedRecords += local.rejected
		result.NulledRecords += local.nulled
	}
	result.Table = final.Finalize()

	stats.Finish()
	result.Stats = stats.Snapshot()
	logger.Infow("Run finished",
		"groups", final.Len(),
		"events", result.Stats.EventsScanned,
		"rejected", result.RejectedRecords,
		"duration", result.Stats.Duration)
	return result, nil
}

// scanWithRetry aggregates one partition, retrying retryable failures with
// exponential backoff. Every attempt starts from an empty table.
func scanWithRetry[R any](ctx context.Context, e *Engine, req Request[R], key types.PartitionKey, stats *observability.RunStats) (*partitionResult[R], error) {
	logger := logging.FromContext(ctx).With("partition", key.Date)

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		logger.Debugw("Scanning partition", "attempt", attempt)
		res, err := scanPartition(ctx, e, req, key)
		if err == nil {
			elapsed := time.Since(start)
			stats.RecordPartition(key.Date, res.events, elapsed)
			stats.RecordRejected(res.rejected)
			logger.Debugw("Partition aggregated", "events", res.events, "groups", res.table.Len(), "duration", elapsed)
			return res, nil
		}
		lastErr = err

		if !apperrors.IsRetryable(err) || attempt == e.opts.MaxRetries {
			break
		}

		stats.RecordRetry()
		backoff := e.opts.RetryBackoff << attempt
		logger.Warnw("Retrying partition scan", "attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

func scanPartition[R any](ctx context.Context, e *Engine, req Request[R], key types.PartitionKey) (*partitionResult[R], error) {
	table, err := req.NewTable()
	if err != nil {
		return nil, apperrors.NewInternalError("create partition table", err)
	}
	res := &partitionResult[R]{table: table}

	scanReq := source.ScanRequest{EventNames: req.EventNames}.ForPartition(key)
	err = e.provider.Scan(ctx, scanReq, func(ev *types.Event) error {
		res.events++
		f := &Fields{ev: ev, seq: res.events}
		rows := req.Map(f)
		if f.Mismatched() {
			if e.opts.Policy == PolicyReject {
				res.rejected++
				return nil
			}
			res.nulled++
		}
		for _, row := range rows {
			if err := table.Add(row); err != nil {
				return apperrors.NewInternalError("accumulate row", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if apperrors.GetCategory(err) == "" {
			err = apperrors.NewSourceError(apperrors.CodePartitionReadFailed,
				fmt.Sprintf("scan partition %s", key.Date), err)
		}
		return nil, err
	}
	return res, nil
}
