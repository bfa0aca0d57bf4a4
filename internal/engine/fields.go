package engine

import (
	"fmt"

	"github.com/arkilian/eventagg/pkg/types"
)

// Policy decides what a type mismatch in a derived field does.
type Policy int

const (
	// PolicyNull nulls the mismatched field and keeps the record.
	PolicyNull Policy = iota
	// PolicyReject drops the whole record and counts it as rejected.
	PolicyReject
)

// ParsePolicy parses "null" or "reject".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "null":
		return PolicyNull, nil
	case "reject":
		return PolicyReject, nil
	}
	return PolicyNull, fmt.Errorf("engine: unknown type mismatch policy %q", s)
}

func (p Policy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "null"
}

// Fields gives a mapper typed access to one event. Missing parameters read
// as null. A parameter holding the wrong type also reads as null and marks
// the record mismatched; the engine then applies its Policy.
type Fields struct {
	ev         *types.Event
	seq        int64
	mismatches []string
}

// NewFields wraps an event.
func NewFields(ev *types.Event) *Fields {
	return &Fields{ev: ev}
}

// Event returns the wrapped event.
func (f *Fields) Event() *types.Event { return f.ev }

// Seq returns the event's 1-based position in its partition scan, or 0 for
// Fields built outside a scan. Together with the event date it identifies
// the event within one run.
func (f *Fields) Seq() int64 { return f.seq }

// String returns the string parameter stored under key.
func (f *Fields) String(key string) types.Value {
	v, ok := f.ev.Param(key)
	if !ok || v.IsNull() {
		return types.Null()
	}
	if _, err := v.AsString(); err != nil {
		f.mismatches = append(f.mismatches, key)
		return types.Null()
	}
	return v
}

// Int returns the integer parameter stored under key.
func (f *Fields) Int(key string) types.Value {
	v, ok := f.ev.Param(key)
	if !ok || v.IsNull() {
		return types.Null()
	}
	if _, err := v.AsInt(); err != nil {
		f.mismatches = append(f.mismatches, key)
		return types.Null()
	}
	return v
}

// Session returns the event's session key; ok is false when the session
// parameter is missing or mismatched.
func (f *Fields) Session() (types.SessionKey, bool) {
	key, ok, err := f.ev.Session()
	if err != nil {
		f.mismatches = append(f.mismatches, types.ParamSessionID)
		return types.SessionKey{}, false
	}
	return key, ok
}

// Mismatched reports whether any accessed field had the wrong type.
func (f *Fields) Mismatched() bool { return len(f.mismatches) > 0 }

// Mismatches returns the keys of mismatched fields in access order.
func (f *Fields) Mismatches() []string { return f.mismatches }
