/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  Every operation returns either a success value or exactly one of the
  typed failures below. Nothing is retried internally; retry policy belongs
  to the caller.

ERROR CATEGORIES:
  1. Authorization - ErrUnauthorized
  2. Validation    - ErrInvalidArgument, ErrInvalidRange
  3. Lookup        - ErrFactorNotFound, ErrNotFound
  4. Resource caps - ErrQuotaExceeded

  Rollup underflow on delete is NOT an error. It clamps to zero.

USAGE:
  if errors.Is(err, ledger.ErrQuotaExceeded) {
      var q *ledger.QuotaError
      errors.As(err, &q)
  }

SEE ALSO:
  - api/handlers.go: Maps kinds to HTTP status codes
  - observability/metrics.go: Counts failures by kind
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnauthorized is returned when the caller lacks rights for the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidArgument is returned for malformed or out-of-bound input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFactorNotFound is returned when logging against an unregistered category.
	ErrFactorNotFound = errors.New("emission factor not found")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned when an account reached its activity cap.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidRange is returned when a query range violates ordering or bounds.
	ErrInvalidRange = errors.New("invalid range")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ArgumentError names the offending field.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArgument }

// RangeError describes a rejected query range.
type RangeError struct {
	Start, End uint64
	Limit      uint64
	Reason     string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range [%d, %d]: %s", e.Start, e.End, e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// QuotaError reports the cap an account ran into.
type QuotaError struct {
	Account Identity
	Max     uint64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %s reached %d activities", e.Account, e.Max)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// NotFoundError identifies the missing activity.
type NotFoundError struct {
	Account Identity
	Seq     uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("activity %s/%d not found", e.Account, e.Seq)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnauthorizedError names the caller and the operation it attempted.
type UnauthorizedError struct {
	Caller    Identity
	Operation string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %q may not %s", e.Caller, e.Operation)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Kind returns a stable, lowercase name for the error's category, or
// "internal" for anything that is not a ledger error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrFactorNotFound):
		return "factor_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	default:
		return "internal"
	}
}

// IsClientError returns true if the error is due to the caller's input or rights.
func IsClientError(err error) bool {
	switch Kind(err) {
	case "", "internal":
		return false
	default:
		return true
	}
}

// IsNotFound returns true if the error indicates a missing record or factor.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrFactorNotFound)
}
