package types

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	params := []Param{{Key: "page_location", Value: StringValue("A")}}

	v, ok := Extract(params, "page_location")
	require.True(t, ok)
	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "A", s)

	_, ok = Extract(params, "missing")
	assert.False(t, ok)

	_, ok = Extract(nil, "page_location")
	assert.False(t, ok)
}

func TestExtract_DuplicateKeysFirstMatchWins(t *testing.T) {
	params := []Param{
		{Key: "x", Value: IntValue(1)},
		{Key: "y", Value: IntValue(7)},
		{Key: "x", Value: IntValue(2)},
	}
	v, ok := Extract(params, "x")
	require.True(t, ok)
	assert.True(t, v.Equal(IntValue(1)))
}

func TestValue_TypeMismatch(t *testing.T) {
	v := StringValue("abc")

	_, err := v.AsInt()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = Null().AsString()
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	f, err := IntValue(3).AsFloat()
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	b, err := BoolValue(true).AsBool()
	require.NoError(t, err)
	assert.True(t, b)
}

func TestValue_KeyDistinguishesTags(t *testing.T) {
	assert.NotEqual(t, IntValue(1).Key(), StringValue("1").Key())
	assert.NotEqual(t, IntValue(1).Key(), BoolValue(true).Key())
	assert.Equal(t, FloatValue(1.5).Key(), FloatValue(1.5).Key())
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(Null(), IntValue(0)))
	assert.Equal(t, 1, Compare(IntValue(0), Null()))
	assert.Equal(t, 0, Compare(Null(), Null()))
	assert.Equal(t, 0, Compare(IntValue(2), FloatValue(2)))
	assert.Equal(t, -1, Compare(IntValue(2), FloatValue(2.5)))
	assert.Equal(t, 1, Compare(StringValue("b"), StringValue("a")))
	assert.Equal(t, -1, Compare(BoolValue(false), BoolValue(true)))
}

func TestValue_JSONRoundTrip(t *testing.T) {
	for _, v := range []Value{Null(), StringValue("x"), IntValue(-4), FloatValue(0.25), BoolValue(true)} {
		data, err := json.Marshal(v)
		require.NoError(t, err)

		var got Value
		require.NoError(t, json.Unmarshal(data, &got))
		assert.True(t, v.Equal(got), "round trip of %s", data)
	}
}

func TestEvent_Session(t *testing.T) {
	ev := Event{UserPseudoID: "u1", Params: []Param{{Key: ParamSessionID, Value: IntValue(42)}}}
	key, ok, err := ev.Session()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SessionKey{UserPseudoID: "u1", SessionID: 42}, key)

	_, ok, err = (&Event{UserPseudoID: "u1"}).Session()
	require.NoError(t, err)
	assert.False(t, ok)

	bad := Event{Params: []Param{{Key: ParamSessionID, Value: StringValue("42")}}}
	_, _, err = bad.Session()
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestItem_LineTotal(t *testing.T) {
	it := Item{Quantity: 3, Price: decimal.RequireFromString("19.99")}
	assert.True(t, it.LineTotal().Equal(decimal.RequireFromString("59.97")))
}

func TestDateRange_Partitions(t *testing.T) {
	keys, err := DateRange{Start: "20240228", End: "20240302"}.Partitions()
	require.NoError(t, err)
	got := make([]string, len(keys))
	for i, k := range keys {
		got[i] = k.Date
	}
	assert.Equal(t, []string{"20240228", "20240229", "20240301", "20240302"}, got)

	_, err = DateRange{Start: "20240302", End: "20240301"}.Partitions()
	assert.True(t, errors.Is(err, ErrInvalidDate))

	_, err = DateRange{Start: "2024-03-01", End: "20240301"}.Partitions()
	assert.True(t, errors.Is(err, ErrInvalidDate))
}

func TestDateOf(t *testing.T) {
	// 2024-01-02T03:04:05Z
	assert.Equal(t, "20240102", DateOf(1704164645000000))
}
