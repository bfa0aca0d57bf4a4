package report

import (
	"strconv"

	"github.com/arkilian/eventagg/internal/engine"
	"github.com/arkilian/eventagg/pkg/types"
)

// eventRow is the event-grain projection shared by event-level reports.
// Only the fields a report asks for are derived, so a mistyped parameter
// affects just the reports that read it.
type eventRow struct {
	date    string
	name    string
	user    string
	ts      int64
	session types.Value
	txn     types.Value
	page    types.Value
}

type eventFields struct {
	session bool
	txn     bool
	page    bool
}

func (ef eventFields) mapper() func(f *engine.Fields) []eventRow {
	return func(f *engine.Fields) []eventRow {
		ev := f.Event()
		row := eventRow{
			date: ev.EventDate,
			name: ev.EventName,
			user: ev.UserPseudoID,
			ts:   ev.EventTimestamp,
		}
		if ef.session {
			if key, ok := f.Session(); ok {
				row.session = sessionValue(key)
			}
		}
		if ef.txn {
			row.txn = f.String(types.ParamTransactionID)
		}
		if ef.page {
			row.page = f.String(types.ParamPageLocation)
		}
		return []eventRow{row}
	}
}

// sessionValue encodes a session key as a single distinct-countable value.
func sessionValue(key types.SessionKey) types.Value {
	return types.StringValue(key.UserPseudoID + "\x1f" + strconv.FormatInt(key.SessionID, 10))
}

func eventDate(r eventRow) []types.Value { return dateKey(r.date) }
func eventUser(r eventRow) types.Value   { return types.StringValue(r.user) }
