// Package window provides partitioned ranking and trailing moving averages
// over aggregated rows.
package window

import (
	"fmt"
	"sort"
)

// Ranked is a row with its rank inside its partition.
type Ranked[T any] struct {
	Row       T
	Partition string
	Rank      int
}

// Rank sorts each partition by metric descending and assigns competition
// ranks: rows with equal metrics share a rank and the next distinct metric
// ranks at (rows ranked so far) + 1, so [10, 10, 8, 5] ranks [1, 1, 3, 4].
// Partitions are returned in ascending key order; rows with equal metrics
// keep their input order.
func Rank[T any](rows []T, partition func(T) string, metric func(T) float64) []Ranked[T] {
	parts, keys := split(rows, partition)

	out := make([]Ranked[T], 0, len(rows))
	for _, key := range keys {
		members := parts[key]
		sort.SliceStable(members, func(i, j int) bool {
			return metric(members[i]) > metric(members[j])
		})

		rank := 0
		for i, row := range members {
			if i == 0 || metric(row) != metric(members[i-1]) {
				rank = i + 1
			}
			out = append(out, Ranked[T]{Row: row, Partition: key, Rank: rank})
		}
	}
	return out
}

// FilterRank keeps rows whose rank is at most maxRank. It runs on assigned
// ranks, so rows tied at the boundary are kept or dropped together.
func FilterRank[T any](ranked []Ranked[T], maxRank int) []Ranked[T] {
	out := make([]Ranked[T], 0, len(ranked))
	for _, r := range ranked {
		if r.Rank <= maxRank {
			out = append(out, r)
		}
	}
	return out
}

// MovingAverage returns, for each position i, the mean of positions
// max(0, i-size+1)..i. Leading positions average a partial window; nothing
// is padded.
func MovingAverage(values []float64, size int) ([]float64, error) {
	if size < 1 {
		return nil, fmt.Errorf("window: size must be positive, got %d", size)
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= size {
			sum -= values[i-size]
		}
		n := i + 1
		if n > size {
			n = size
		}
		out[i] = sum / float64(n)
	}
	return out, nil
}

// Averaged is a row with its trailing moving average.
type Averaged[T any] struct {
	Row       T
	Partition string
	Average   float64
}

// MovingAverageBy orders each partition by orderKey ascending and computes
// a trailing moving average of value over it.
func MovingAverageBy[T any](
	rows []T,
	partition func(T) string,
	orderKey func(T) string,
	value func(T) float64,
	size int,
) ([]Averaged[T], error) {
	if size < 1 {
		return nil, fmt.Errorf("window: size must be positive, got %d", size)
	}
	parts, keys := split(rows, partition)

	out := make([]Averaged[T], 0, len(rows))
	for _, key := range keys {
		members := parts[key]
		sort.SliceStable(members, func(i, j int) bool {
			return orderKey(members[i]) < orderKey(members[j])
		})

		vals := make([]float64, len(members))
		for i, row := range members {
			vals[i] = value(row)
		}
		avgs, err := MovingAverage(vals, size)
		if err != nil {
			return nil, err
		}
		for i, row := range members {
			out = append(out, Averaged[T]{Row: row, Partition: key, Average: avgs[i]})
		}
	}
	return out, nil
}

// split groups rows by partition key, preserving input order within each
// group, and returns the keys sorted ascending.
func split[T any](rows []T, partition func(T) string) (map[string][]T, []string) {
	parts := make(map[string][]T)
	var keys []string
	for _, row := range rows {
		key := ""
		if partition != nil {
			key = partition(row)
		}
		if _, seen := parts[key]; !seen {
			keys = append(keys, key)
		}
		parts[key] = append(parts[key], row)
	}
	sort.Strings(keys)
	return parts, keys
}
