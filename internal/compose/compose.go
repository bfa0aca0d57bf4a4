// Package compose joins aggregate tables and derives ratios from them.
package compose

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/arkilian/eventagg/internal/errors"
)

var hundred = decimal.NewFromInt(100)

// Joined pairs a base row with its detail row. Matched is false when the
// detail side was filled with the default.
type Joined[B, D any] struct {
	Base    B
	Detail  D
	Matched bool
}

// LeftJoin preserves every base row, in base order, and attaches the detail
// row sharing its key. Base rows without a detail row receive defaultDetail,
// so count-like metrics read as zero rather than null. Two detail rows with
// the same key are rejected with DUPLICATE_KEY.
func LeftJoin[K comparable, B, D any](
	base []B,
	baseKey func(B) K,
	detail []D,
	detailKey func(D) K,
	defaultDetail D,
) ([]Joined[B, D], error) {
	index := make(map[K]D, len(detail))
	for _, d := range detail {
		k := detailKey(d)
		if _, dup := index[k]; dup {
			return nil, apperrors.NewValidationError(apperrors.CodeDuplicateKey,
				fmt.Sprintf("detail table has more than one row for key %v", k))
		}
		index[k] = d
	}

	out := make([]Joined[B, D], len(base))
	for i, b := range base {
		d, ok := index[baseKey(b)]
		if !ok {
			d = defaultDetail
		}
		out[i] = Joined[B, D]{Base: b, Detail: d, Matched: ok}
	}
	return out, nil
}

// Ratio returns numerator / denominator * 100 rounded half away from zero to
// places decimal places. A zero denominator yields null.
func Ratio(numerator, denominator decimal.Decimal, places int32) decimal.NullDecimal {
	if denominator.IsZero() {
		return decimal.NullDecimal{}
	}
	pct := numerator.Mul(hundred).DivRound(denominator, places)
	return decimal.NewNullDecimal(pct)
}

// RatioInt is Ratio over integer counts.
func RatioInt(numerator, denominator int64, places int32) decimal.NullDecimal {
	return Ratio(decimal.NewFromInt(numerator), decimal.NewFromInt(denominator), places)
}

// FormatFixed renders a nullable decimal with exactly places decimals, or
// "null".
func FormatFixed(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "null"
	}
	return d.Decimal.StringFixed(places)
}
