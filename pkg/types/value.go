package types

import (
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a tagged union holding a string, integer, float, boolean, or null.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
}

// Null returns the null Value.
func Null() Value { return Value{} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{kind: KindInt, num: i} }

// FloatValue returns a float Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, flt: f} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Kind returns the tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("%w: value is %s, want %s", ErrTypeMismatch, v.kind, want)
}

// AsString returns the string held by v, or an error wrapping
// ErrTypeMismatch if v holds any other kind (null included).
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.str, nil
}

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, v.mismatch(KindInt)
	}
	return v.num, nil
}

// AsFloat returns the float held by v. Integers widen to float.
func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindFloat:
		return v.flt, nil
	case KindInt:
		return float64(v.num), nil
	}
	return 0, v.mismatch(KindFloat)
}

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.num == 1, nil
}

// String renders v in a canonical, tag-free form. Null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.num == 1)
	}
	return ""
}

// Key returns a tag-qualified canonical form, so that IntValue(1) and
// StringValue("1") never collide in distinct sets or group keys.
func (v Value) Key() string {
	switch v.kind {
	case KindNull:
		return "n:"
	case KindString:
		return "s:" + v.str
	case KindInt:
		return "i:" + strconv.FormatInt(v.num, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.flt), 16)
	default:
		return "b:" + strconv.FormatInt(v.num, 10)
	}
}

// Equal reports structural equality (same tag, same payload).
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.str == o.str && v.num == o.num &&
		math.Float64bits(v.flt) == math.Float64bits(o.flt)
}

// Compare orders two values: null sorts first, ints and floats compare
// numerically, strings lexically, false before true. Values of unrelated
// kinds order by tag.
func Compare(a, b Value) int {
	if a.kind == KindNull || b.kind == KindNull {
		return cmpInt(boolInt(b.kind == KindNull), boolInt(a.kind == KindNull))
	}

	if isNumeric(a.kind) && isNumeric(b.kind) {
		if a.kind == KindInt && b.kind == KindInt {
			return cmpInt(a.num, b.num)
		}
		fa, _ := a.AsFloat()
		fb, _ := b.AsFloat()
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}

	if a.kind != b.kind {
		return cmpInt(int64(a.kind), int64(b.kind))
	}

	switch a.kind {
	case KindString:
		switch {
		case a.str < b.str:
			return -1
		case a.str > b.str:
			return 1
		}
		return 0
	default:
		return cmpInt(a.num, b.num)
	}
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// wireValue is the JSON shape of a Value, one field per tag.
type wireValue struct {
	StringValue *string  `json:"string_value,omitempty"`
	IntValue    *int64   `json:"int_value,omitempty"`
	FloatValue  *float64 `json:"float_value,omitempty"`
	BoolValue   *bool    `json:"bool_value,omitempty"`
}

// MarshalJSON encodes v as an object with exactly one populated field
// (or none for null).
func (v Value) MarshalJSON() ([]byte, error) {
	var w wireValue
	switch v.kind {
	case KindString:
		w.StringValue = &v.str
	case KindInt:
		w.IntValue = &v.num
	case KindFloat:
		w.FloatValue = &v.flt
	case KindBool:
		b := v.num == 1
		w.BoolValue = &b
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the object form written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.StringValue != nil:
		*v = StringValue(*w.StringValue)
	case w.IntValue != nil:
		*v = IntValue(*w.IntValue)
	case w.FloatValue != nil:
		*v = FloatValue(*w.FloatValue)
	case w.BoolValue != nil:
		*v = BoolValue(*w.BoolValue)
	default:
		*v = Null()
	}
	return nil
}
