package types

import (
	"fmt"
	"time"
)

// DateLayout is the layout of event_date partition keys (YYYYMMDD).
const DateLayout = "20060102"

// PartitionKey identifies one independently processable slice of the input:
// all events sharing an event_date.
type PartitionKey struct {
	// Date is the event_date value in YYYYMMDD form
	Date string `json:"date"`
}

// String returns the partition date.
func (k PartitionKey) String() string { return k.Date }

// ParseDate parses a YYYYMMDD partition date.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// DateRange is an inclusive pair of YYYYMMDD dates.
type DateRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Contains reports whether date lies within the range. YYYYMMDD strings
// order lexically the same way they order chronologically.
func (r DateRange) Contains(date string) bool {
	return date >= r.Start && date <= r.End
}

// Partitions enumerates every calendar day of the range in ascending order.
func (r DateRange) Partitions() ([]PartitionKey, error) {
	start, err := ParseDate(r.Start)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(r.End)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidDate, r.End, r.Start)
	}

	var keys []PartitionKey
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		keys = append(keys, PartitionKey{Date: d.Format(DateLayout)})
	}
	return keys, nil
}

// DateOf returns the YYYYMMDD date (UTC) of a microsecond timestamp.
func DateOf(timestampMicros int64) string {
	return time.UnixMicro(timestampMicros).UTC().Format(DateLayout)
}
