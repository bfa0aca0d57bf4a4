package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/goccy/go-json"

	"github.com/arkilian/eventagg/pkg/types"
)

// ReadNDJSON decodes newline-delimited JSON events. Events without an
// event_date are assigned the UTC date of their timestamp.
func ReadNDJSON(r io.Reader) ([]types.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var events []types.Event
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("source: line %d: %w", line, err)
		}
		if ev.EventDate == "" {
			ev.EventDate = types.DateOf(ev.EventTimestamp)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("source: read events: %w", err)
	}
	return events, nil
}

// GroupByDate files events under their event_date, preserving input order
// within each date. It returns the dates in ascending order.
func GroupByDate(events []types.Event) (map[string][]types.Event, []string) {
	groups := make(map[string][]types.Event)
	var dates []string
	for _, ev := range events {
		if _, ok := groups[ev.EventDate]; !ok {
			dates = append(dates, ev.EventDate)
		}
		groups[ev.EventDate] = append(groups[ev.EventDate], ev)
	}
	sort.Strings(dates)
	return groups, dates
}
