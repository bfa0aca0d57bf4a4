// Package types provides the event record model shared by every eventagg operator.
package types

import "github.com/shopspring/decimal"

// Well-known parameter keys.
const (
	ParamSessionID     = "ga_session_id"
	ParamTransactionID = "transaction_id"
	ParamPageLocation  = "page_location"
)

// Well-known event names.
const (
	EventPageView  = "page_view"
	EventPurchase  = "purchase"
	EventAddToCart = "add_to_cart"
)

// Event is one recorded user/app interaction. Events are immutable once read;
// Params and Items belong to exactly one Event and are never shared.
type Event struct {
	// EventName categorizes the event (e.g., "page_view", "purchase")
	EventName string `json:"event_name"`

	// EventTimestamp is microseconds since the Unix epoch
	EventTimestamp int64 `json:"event_timestamp"`

	// EventDate is the partition key in YYYYMMDD form
	EventDate string `json:"event_date"`

	// UserPseudoID is the anonymous user identifier
	UserPseudoID string `json:"user_pseudo_id"`

	// Params holds key/value parameters in the record's native order.
	// Duplicate keys are permitted.
	Params []Param `json:"event_params,omitempty"`

	// Items holds the line items, possibly none
	Items []Item `json:"items,omitempty"`
}

// Param is a single key/value parameter of an Event.
type Param struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Item is a single line item of an Event.
type Item struct {
	ItemID   string          `json:"item_id"`
	ItemName string          `json:"item_name"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Extract scans params in native order and returns the value of the first
// entry whose key matches. The boolean is false when no entry matches.
//
// When the source carries duplicate keys the first entry wins; whether that
// entry is the semantically meaningful one depends on the upstream provider
// preserving record order.
func Extract(params []Param, key string) (Value, bool) {
	for i := range params {
		if params[i].Key == key {
			return params[i].Value, true
		}
	}
	return Value{}, false
}

// Param returns the first parameter value stored under key.
func (e *Event) Param(key string) (Value, bool) {
	return Extract(e.Params, key)
}

// SessionKey identifies a session: sessions are not stored, they are a
// grouping key computed per Event.
type SessionKey struct {
	UserPseudoID string `json:"user_pseudo_id"`
	SessionID    int64  `json:"ga_session_id"`
}

// Session derives the session key of the event. ok is false when the event
// carries no session parameter; err wraps ErrTypeMismatch when the parameter
// is present but not an integer.
func (e *Event) Session() (key SessionKey, ok bool, err error) {
	v, found := e.Param(ParamSessionID)
	if !found || v.IsNull() {
		return SessionKey{}, false, nil
	}
	id, err := v.AsInt()
	if err != nil {
		return SessionKey{}, false, err
	}
	return SessionKey{UserPseudoID: e.UserPseudoID, SessionID: id}, true, nil
}

// LineTotal returns price × quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(it.Quantity))
}
