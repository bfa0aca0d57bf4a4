// Package errors provides structured error types for the eventagg engine.
// All errors include a category, code, message, and retryable flag so that
// callers can decide per failure whether to retry, degrade, or abort.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by engine component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryExtraction ErrorCategory = "EXTRACTION"
	ErrCategorySource     ErrorCategory = "SOURCE"
	ErrCategoryEngine     ErrorCategory = "ENGINE"
	ErrCategorySketch     ErrorCategory = "SKETCH"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidDateRange = "INVALID_DATE_RANGE"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeDuplicateKey     = "DUPLICATE_KEY"

	// Extraction codes
	CodeTypeMismatch = "TYPE_MISMATCH"

	// Source codes
	CodePartitionNotFound   = "PARTITION_NOT_FOUND"
	CodePartitionReadFailed = "PARTITION_READ_FAILED"

	// Engine codes
	CodePartitionsMissing = "PARTITIONS_MISSING"

	// Sketch codes
	CodeIncompatibleSketch = "INCOMPATIBLE_SKETCH"
	CodeCorruptSketch      = "CORRUPT_SKETCH"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the engine.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// isRetryable reports which codes a caller may safely retry. Only partition
// reads qualify: local aggregation of a partition is idempotent.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategorySource && code == CodePartitionReadFailed
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewExtractionError(message string, cause error) *Error {
	return Wrap(ErrCategoryExtraction, CodeTypeMismatch, message, cause)
}

func NewSourceError(code, message string, cause error) *Error {
	return Wrap(ErrCategorySource, code, message, cause)
}

func NewEngineError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryEngine, code, message, cause)
}

func NewSketchError(code, message string) *Error {
	return New(ErrCategorySketch, code, message)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
