package models

import "time"

// ErrorKind classifies a validation error or warning.
type ErrorKind string

// Validation error kinds.
const (
	KindRequiredFieldMissing ErrorKind = "required-field-missing"
	KindTypeMismatch         ErrorKind = "type-mismatch"
	KindPatternMismatch      ErrorKind = "pattern-mismatch"
	KindOutOfRange           ErrorKind = "out-of-range"
	KindBadFormat            ErrorKind = "bad-format"
	KindInvalidEnumValue     ErrorKind = "invalid-enum-value"
	KindUnknownField         ErrorKind = "unknown-field"
	KindDuplicateIdentifier  ErrorKind = "duplicate-identifier"
	KindInvalidIdentifier    ErrorKind = "invalid-identifier"
	KindParseError           ErrorKind = "parse-error"
	KindBudgetExceeded       ErrorKind = "budget-exceeded"
)

// ValidationError is one problem found on an item. Field is empty for
// item-level errors.
type ValidationError struct {
	Field    string    `json:"field"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Expected string    `json:"expected,omitempty"`
	Value    any       `json:"value,omitempty"`
}

// ValidationResult is the outcome of one validation pass. Valid is true iff
// Errors is empty.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Errors    []ValidationError `json:"errors"`
	Warnings  []ValidationError `json:"warnings"`
	CheckedAt time.Time         `json:"checked_at"`
}

// NewValidationResult derives Valid from errs so the two never disagree.
func NewValidationResult(errs, warnings []ValidationError, at time.Time) ValidationResult {
	if errs == nil {
		errs = []ValidationError{}
	}
	if warnings == nil {
		warnings = []ValidationError{}
	}
	return ValidationResult{
		Valid:     len(errs) == 0,
		Errors:    errs,
		Warnings:  warnings,
		CheckedAt: at,
	}
}

// WithErrors returns a copy with extra errors appended; the copy is invalid
// when any error is given.
func (r ValidationResult) WithErrors(errs ...ValidationError) ValidationResult {
	all := make([]ValidationError, 0, len(r.Errors)+len(errs))
	all = append(all, r.Errors...)
	all = append(all, errs...)
	return NewValidationResult(all, r.Warnings, r.CheckedAt)
}
