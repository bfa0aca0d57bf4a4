package source

import (
	"context"
	"sort"
	"sync"

	"github.com/arkilian/eventagg/pkg/types"
)

// MemoryProvider serves events held in memory, keyed by event_date.
type MemoryProvider struct {
	mu         sync.RWMutex
	partitions map[string][]types.Event
}

// NewMemoryProvider creates a provider holding the given events. Each event
// is filed under its EventDate, or under the date of its timestamp when
// EventDate is empty.
func NewMemoryProvider(events ...types.Event) *MemoryProvider {
	p := &MemoryProvider{partitions: make(map[string][]types.Event)}
	p.Add(events...)
	return p
}

// Add appends events to their partitions.
func (p *MemoryProvider) Add(events ...types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range events {
		if ev.EventDate == "" {
			ev.EventDate = types.DateOf(ev.EventTimestamp)
		}
		p.partitions[ev.EventDate] = append(p.partitions[ev.EventDate], ev)
	}
}

// AddPartition registers a date as present even if it holds no events.
func (p *MemoryProvider) AddPartition(date string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.partitions[date]; !ok {
		p.partitions[date] = nil
	}
}

// Dates lists the registered partition dates, ascending.
func (p *MemoryProvider) Dates(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	dates := make([]string, 0, len(p.partitions))
	for date := range p.partitions {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Scan implements Provider.
func (p *MemoryProvider) Scan(ctx context.Context, req ScanRequest, fn func(*types.Event) error) error {
	keys, err := req.Range.Partitions()
	if err != nil {
		return err
	}
	match := nameFilter(req.EventNames)

	for _, key := range keys {
		p.mu.RLock()
		events, ok := p.partitions[key.Date]
		p.mu.RUnlock()
		if !ok {
			return partitionNotFound(key.Date)
		}
		for i := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !match(events[i].EventName) {
				continue
			}
			ev := events[i]
			if err := fn(&ev); err != nil {
				return err
			}
		}
	}
	return nil
}
