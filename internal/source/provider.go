// Package source provides the record providers the engine scans: an
// in-memory provider, SQLite partition files on local disk, and partition
// files held in object storage.
package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	apperrors "github.com/arkilian/eventagg/internal/errors"
	"github.com/arkilian/eventagg/pkg/types"
)

// ScanRequest selects the events to scan.
type ScanRequest struct {
	// Range is the inclusive date range to scan
	Range types.DateRange

	// EventNames restricts the scan to these event names; empty means all
	EventNames []string
}

// ForPartition returns a request scanning the single given date.
func (r ScanRequest) ForPartition(key types.PartitionKey) ScanRequest {
	return ScanRequest{
		Range:      types.DateRange{Start: key.Date, End: key.Date},
		EventNames: r.EventNames,
	}
}

// Provider exposes a sequential scan over events. Events are delivered in
// ascending date order and, within a date, in an order that is stable across
// scans. A date the provider cannot serve fails with PARTITION_NOT_FOUND;
// transient failures fail with the retryable PARTITION_READ_FAILED.
//
// The callback must not retain the *Event past its return.
type Provider interface {
	Scan(ctx context.Context, req ScanRequest, fn func(*types.Event) error) error
}

// DateLister is implemented by providers that can enumerate their
// partitions.
type DateLister interface {
	Dates(ctx context.Context) ([]string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req ScanRequest, fn func(*types.Event) error) error

// Scan calls f.
func (f ProviderFunc) Scan(ctx context.Context, req ScanRequest, fn func(*types.Event) error) error {
	return f(ctx, req, fn)
}

// ErrPartitionNotFound is the cause of every PARTITION_NOT_FOUND error.
var ErrPartitionNotFound = errors.New("partition not found")

func partitionNotFound(date string) error {
	return apperrors.NewSourceError(apperrors.CodePartitionNotFound,
		fmt.Sprintf("no data for %s", date), ErrPartitionNotFound).
		WithDetails(map[string]interface{}{"partition": date})
}

func partitionReadFailed(date string, cause error) error {
	return apperrors.NewSourceError(apperrors.CodePartitionReadFailed,
		fmt.Sprintf("failed to read partition %s", date), cause).
		WithDetails(map[string]interface{}{"partition": date})
}

// nameFilter returns a predicate for the request's event names.
func nameFilter(names []string) func(string) bool {
	if len(names) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

// partitionDates extracts the dates of partition file names, ascending.
// Names that are not <YYYYMMDD>.sqlite are skipped.
func partitionDates(names []string) []string {
	var dates []string
	for _, name := range names {
		base := path.Base(name)
		if path.Ext(base) != ".sqlite" {
			continue
		}
		date := strings.TrimSuffix(base, ".sqlite")
		if _, err := types.ParseDate(date); err == nil {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates
}
