package aggregate

import (
	"sort"

	"github.com/arkilian/eventagg/pkg/types"
)

// OrderKey orders TOP_K tuples by one tuple position.
type OrderKey struct {
	Index int
	Desc  bool
}

// TopKBuffer retains the capacity best tuples seen so far under a multi-key
// comparator, best first. It never holds more than capacity tuples.
//
// Tuples that tie on every order key keep arrival order, earlier first. That
// tie-break is local to one buffer: buffers built on different partitions
// merge deterministically only when the order keys alone are total, e.g.
// when they end in a timestamp.
type TopKBuffer struct {
	capacity int
	order    []OrderKey
	entries  [][]types.Value
}

// NewTopKBuffer creates an empty buffer. A capacity below 1 is treated as 1.
func NewTopKBuffer(capacity int, order []OrderKey) *TopKBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &TopKBuffer{
		capacity: capacity,
		order:    order,
		entries:  make([][]types.Value, 0, capacity),
	}
}

// Capacity returns the maximum number of retained tuples.
func (b *TopKBuffer) Capacity() int { return b.capacity }

// Len returns the number of retained tuples.
func (b *TopKBuffer) Len() int { return len(b.entries) }

// compare returns <0 when a ranks better than c, >0 when worse, 0 on a tie.
func (b *TopKBuffer) compare(a, c []types.Value) int {
	for _, k := range b.order {
		var av, cv types.Value
		if k.Index < len(a) {
			av = a[k.Index]
		}
		if k.Index < len(c) {
			cv = c[k.Index]
		}
		cmp := types.Compare(av, cv)
		if cmp == 0 {
			continue
		}
		if k.Desc {
			return -cmp
		}
		return cmp
	}
	return 0
}

// Insert offers a tuple. While the buffer has room the tuple is placed in
// sorted position; once full it replaces the current worst tuple only if it
// is strictly better. Reports whether the tuple was retained.
func (b *TopKBuffer) Insert(tuple []types.Value) bool {
	n := len(b.entries)
	if n >= b.capacity && b.compare(tuple, b.entries[n-1]) >= 0 {
		return false
	}

	// First position holding a strictly worse tuple; ties stay ahead.
	pos := sort.Search(n, func(i int) bool {
		return b.compare(tuple, b.entries[i]) < 0
	})

	if n >= b.capacity {
		b.entries = b.entries[:n-1]
	}
	b.entries = append(b.entries, nil)
	copy(b.entries[pos+1:], b.entries[pos:])
	b.entries[pos] = tuple
	return true
}

// Merge folds other into b: the union of both buffers re-truncated to
// capacity. On full ties b's tuples precede other's.
func (b *TopKBuffer) Merge(other *TopKBuffer) {
	if other == nil || len(other.entries) == 0 {
		return
	}
	union := make([][]types.Value, 0, len(b.entries)+len(other.entries))
	union = append(union, b.entries...)
	union = append(union, other.entries...)
	sort.SliceStable(union, func(i, j int) bool {
		return b.compare(union[i], union[j]) < 0
	})
	if len(union) > b.capacity {
		union = union[:b.capacity]
	}
	b.entries = union
}

// Entries returns the retained tuples, best first.
func (b *TopKBuffer) Entries() [][]types.Value {
	out := make([][]types.Value, len(b.entries))
	copy(out, b.entries)
	return out
}

// Clone returns an independent copy of the buffer.
func (b *TopKBuffer) Clone() *TopKBuffer {
	cp := &TopKBuffer{
		capacity: b.capacity,
		order:    b.order,
		entries:  make([][]types.Value, len(b.entries), b.capacity),
	}
	copy(cp.entries, b.entries)
	return cp
}
