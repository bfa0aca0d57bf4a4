package compose

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/arkilian/eventagg/internal/errors"
)

type usersRow struct {
	Date  string
	Users int64
}

type purchasesRow struct {
	Date      string
	Purchases int64
}

func TestLeftJoin_DefaultsUnmatchedDetail(t *testing.T) {
	base := []usersRow{{"20240101", 4}, {"20240102", 5}, {"20240103", 3}}
	detail := []purchasesRow{{"20240102", 1}}

	joined, err := LeftJoin(base,
		func(r usersRow) string { return r.Date },
		detail,
		func(r purchasesRow) string { return r.Date },
		purchasesRow{})
	require.NoError(t, err)
	require.Len(t, joined, 3)

	assert.False(t, joined[0].Matched)
	assert.Equal(t, int64(0), joined[0].Detail.Purchases)
	assert.True(t, joined[1].Matched)
	assert.Equal(t, int64(1), joined[1].Detail.Purchases)
	assert.Equal(t, "20240103", joined[2].Base.Date)
}

func TestLeftJoin_DuplicateDetailKey(t *testing.T) {
	detail := []purchasesRow{{"20240102", 1}, {"20240102", 2}}
	_, err := LeftJoin([]usersRow{{"20240102", 1}},
		func(r usersRow) string { return r.Date },
		detail,
		func(r purchasesRow) string { return r.Date },
		purchasesRow{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDuplicateKey, apperrors.GetCode(err))
}

func TestRatio(t *testing.T) {
	r := Ratio(decimal.NewFromInt(25), decimal.NewFromInt(100), 2)
	require.True(t, r.Valid)
	assert.Equal(t, "25.00", r.Decimal.StringFixed(2))

	assert.False(t, Ratio(decimal.NewFromInt(3), decimal.Zero, 2).Valid)

	zero := RatioInt(0, 5, 2)
	require.True(t, zero.Valid)
	assert.Equal(t, "0.00", FormatFixed(zero, 2))

	assert.Equal(t, "20.00", FormatFixed(RatioInt(1, 5, 2), 2))
	assert.Equal(t, "33.33", FormatFixed(RatioInt(1, 3, 2), 2))
	assert.Equal(t, "66.67", FormatFixed(RatioInt(2, 3, 2), 2))
	assert.Equal(t, "null", FormatFixed(RatioInt(2, 0, 2), 2))
}

func TestRatio_RoundsOnce(t *testing.T) {
	// 1/20001*100 = 0.0049997..., just under the half step
	assert.Equal(t, "0.00", FormatFixed(RatioInt(1, 20001, 2), 2))
	// 1/19999*100 = 0.0050002..., just over it
	assert.Equal(t, "0.01", FormatFixed(RatioInt(1, 19999, 2), 2))
	// 1/8*100 = 12.5, exactly half
	assert.Equal(t, "13", FormatFixed(RatioInt(1, 8, 0), 0))
	assert.Equal(t, "-13", FormatFixed(RatioInt(-1, 8, 0), 0))
}
