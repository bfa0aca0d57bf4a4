// Package flatten expands an event's item list into item-grain rows.
package flatten

import "github.com/arkilian/eventagg/pkg/types"

// ItemRow is one child row at item grain: every scalar field of the parent
// event plus the fields of one item. Item is nil only for the placeholder
// row FlattenOuter emits for an event without items.
type ItemRow struct {
	EventName      string
	EventTimestamp int64
	EventDate      string
	UserPseudoID   string

	// Params is the parent's parameter list, shared read-only with the event
	Params []types.Param

	// Index is the item's position in the parent's item list, -1 for a
	// placeholder row
	Index int
	Item  *types.Item
}

// Param returns the first parent parameter stored under key.
func (r *ItemRow) Param(key string) (types.Value, bool) {
	return types.Extract(r.Params, key)
}

// HasItem reports whether the row carries item fields.
func (r *ItemRow) HasItem() bool { return r.Item != nil }

// Flatten emits exactly one row per item. An event without items yields no
// rows, like a row-multiplying join.
func Flatten(ev *types.Event) []ItemRow {
	if len(ev.Items) == 0 {
		return nil
	}
	rows := make([]ItemRow, len(ev.Items))
	for i := range ev.Items {
		rows[i] = parentRow(ev, i)
	}
	return rows
}

// FlattenOuter behaves like Flatten but emits a single row with null item
// fields when the event has no items, preserving the parent row.
func FlattenOuter(ev *types.Event) []ItemRow {
	if len(ev.Items) == 0 {
		row := parentRow(ev, -1)
		return []ItemRow{row}
	}
	return Flatten(ev)
}

// FlattenAll flattens a batch, preserving event order then item order.
func FlattenAll(events []types.Event, outer bool) []ItemRow {
	var rows []ItemRow
	for i := range events {
		if outer {
			rows = append(rows, FlattenOuter(&events[i])...)
		} else {
			rows = append(rows, Flatten(&events[i])...)
		}
	}
	return rows
}

func parentRow(ev *types.Event, idx int) ItemRow {
	row := ItemRow{
		EventName:      ev.EventName,
		EventTimestamp: ev.EventTimestamp,
		EventDate:      ev.EventDate,
		UserPseudoID:   ev.UserPseudoID,
		Params:         ev.Params,
		Index:          idx,
	}
	if idx >= 0 {
		item := ev.Items[idx]
		row.Item = &item
	}
	return row
}
