// Package observability tracks per-run statistics and exports engine metrics.
package observability

import (
	"sort"
	"sync"
	"time"
)

// RunStats accumulates statistics of one engine run. Partition workers
// update it concurrently.
type RunStats struct {
	mu sync.Mutex

	report    string
	started   time.Time
	finished  time.Time
	scanned   int64
	events    int64
	retries   int64
	rejected  int64
	missing   []string
	durations map[string]time.Duration
}

// Snapshot is an immutable copy of RunStats.
type Snapshot struct {
	Report             string                   `json:"report"`
	Duration           time.Duration            `json:"duration_ns"`
	PartitionsScanned  int64                    `json:"partitions_scanned"`
	EventsScanned      int64                    `json:"events_scanned"`
	Retries            int64                    `json:"retries"`
	RecordsRejected    int64                    `json:"records_rejected"`
	MissingPartitions  []string                 `json:"missing_partitions,omitempty"`
	PartitionDurations map[string]time.Duration `json:"partition_durations_ns,omitempty"`
}

// NewRunStats starts tracking a run of the named report.
func NewRunStats(report string) *RunStats {
	return &RunStats{
		report:    report,
		started:   time.Now(),
		durations: make(map[string]time.Duration),
	}
}

// RecordPartition records a completed partition scan.
func (s *RunStats) RecordPartition(date string, events int64, elapsed time.Duration) {
	s.mu.Lock()
	s.scanned++
	s.events += events
	s.durations[date] = elapsed
	s.mu.Unlock()

	PartitionsScanned.WithLabelValues(s.report).Inc()
	EventsScanned.WithLabelValues(s.report).Add(float64(events))
	PartitionScanDuration.WithLabelValues(s.report).Observe(elapsed.Seconds())
}

// RecordRetry records one retried partition scan.
func (s *RunStats) RecordRetry() {
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
	PartitionRetries.WithLabelValues(s.report).Inc()
}

// RecordRejected records n records dropped by the reject policy.
func (s *RunStats) RecordRejected(n int64) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	s.rejected += n
	s.mu.Unlock()
	RecordsRejected.WithLabelValues(s.report).Add(float64(n))
}

// RecordMissing records a partition that could not be served.
func (s *RunStats) RecordMissing(date string) {
	s.mu.Lock()
	s.missing = append(s.missing, date)
	s.mu.Unlock()
	PartitionsMissing.WithLabelValues(s.report).Inc()
}

// Finish marks the end of the run.
func (s *RunStats) Finish() {
	s.mu.Lock()
	s.finished = time.Now()
	s.mu.Unlock()
}

// Snapshot returns a copy of the statistics so far. Missing partitions are
// sorted by date.
func (s *RunStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.finished
	if end.IsZero() {
		end = time.Now()
	}
	missing := append([]string(nil), s.missing...)
	sort.Strings(missing)
	durations := make(map[string]time.Duration, len(s.durations))
	for k, v := range s.durations {
		durations[k] = v
	}
	return Snapshot{
		Report:             s.report,
		Duration:           end.Sub(s.started),
		PartitionsScanned:  s.scanned,
		EventsScanned:      s.events,
		Retries:            s.retries,
		RecordsRejected:    s.rejected,
		MissingPartitions:  missing,
		PartitionDurations: durations,
	}
}
