package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LabelReport is the label naming the report a run computes.
const LabelReport = "report"

// PartitionsScanned counts partitions whose local aggregation completed.
var PartitionsScanned = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "eventagg",
	Name:      "partitions_scanned_total",
	Help:      "Total number of partitions scanned and aggregated",
}, []string{LabelReport})

// PartitionRetries counts partition scans retried after a read failure.
var PartitionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "eventagg",
	Name:      "partition_retries_total",
	Help:      "Total number of partition scan retries",
}, []string{LabelReport})

// PartitionsMissing counts partitions that could not be served.
var PartitionsMissing = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "eventagg",
	Name:      "partitions_missing_total",
	Help:      "Total number of partitions that were missing or failed after retries",
}, []string{LabelReport})

// EventsScanned counts events delivered by providers.
var EventsScanned = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "eventagg",
	Name:      "events_scanned_total",
	Help:      "Total number of events scanned",
}, []string{LabelReport})

// RecordsRejected counts records dropped by the reject type-mismatch policy.
var RecordsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "eventagg",
	Name:      "records_rejected_total",
	Help:      "Total number of records rejected on type mismatch",
}, []string{LabelReport})

// PartitionScanDuration observes the wall time of one partition's local phase.
var PartitionScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "eventagg",
	Name:      "partition_scan_duration_seconds",
	Help:      "Duration of a partition scan and local aggregation",
	Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
}, []string{LabelReport})

// CacheLookups counts partition cache lookups by result ("hit" or "miss").
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "eventagg",
	Name:      "partition_cache_lookups_total",
	Help:      "Total number of partition cache lookups",
}, []string{"result"})

// CacheEvictions counts partition files evicted from the local cache.
var CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
	Subsystem: "eventagg",
	Name:      "partition_cache_evictions_total",
	Help:      "Total number of partition files evicted from the cache",
})

// CacheBytes is the size of the partition files held in the cache.
var CacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
	Subsystem: "eventagg",
	Name:      "partition_cache_bytes",
	Help:      "Bytes of partition files held in the local cache",
})
