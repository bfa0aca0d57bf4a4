package types

import "errors"

// Record model errors
var (
	// ErrTypeMismatch is returned by typed accessors when the stored tag
	// differs from the requested one
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidDate is returned when a partition date is not in YYYYMMDD form
	ErrInvalidDate = errors.New("invalid partition date")
)
