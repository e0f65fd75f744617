package booking

import (
	"errors"

	"github.com/webschedulr/scheduling/internal/policy"
)

// ErrSlotConflict means the requested slot lost a race to another booking.
// Callers should re-fetch availability and let the user pick again.
var ErrSlotConflict = errors.New("time slot is no longer available")

// ErrNotFound covers unknown appointment ids, unknown tokens, and
// token/contact mismatches. The cases are deliberately indistinguishable so
// the public lookup path leaks nothing about which part failed.
var ErrNotFound = errors.New("appointment not found")

// ValidationError reports malformed or unresolvable input with field detail.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Msg
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsPolicyViolation(err error) bool {
	var pv *policy.Violation
	return errors.As(err, &pv)
}

// retryable reports whether an error is a transient storage failure rather
// than a typed domain outcome. Transient failures are retried once.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrSlotConflict) &&
		!errors.Is(err, ErrNotFound) &&
		!IsValidation(err) &&
		!IsPolicyViolation(err)
}
