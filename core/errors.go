/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Components wrap these with context; callers branch with errors.Is/As.

ERROR CATEGORIES:
  1. Caller-recoverable: validation, not found, invalid transition,
     capacity unavailable, hold expired. Returned as typed failures for
     the API layer to present.
  2. Retryable: concurrency conflict. Retried internally a bounded number
     of times (see retry.go) before surfacing.
  3. Fatal: invariant violation. A ledger counter would go negative. The
     transaction is aborted and the error always propagates.

USAGE:
  if errors.Is(err, core.ErrCapacityUnavailable) {
      var capErr *core.CapacityError
      errors.As(err, &capErr)
      fmt.Println("sold out on", capErr.Date)
  }

SEE ALSO:
  - retry.go: Uses IsRetryable
  - inventory/ledger.go: Raises CapacityError and InvariantError
  - booking/transitions.go: Raises TransitionError
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or out-of-range input. It is
	// always raised before any inventory is touched.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when an action is illegal for the
	// booking's current status.
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrCapacityUnavailable is returned when some date in a stay has
	// insufficient free-to-sell capacity.
	ErrCapacityUnavailable = errors.New("capacity unavailable")

	// ErrHoldExpired is returned when a hold is confirmed after its TTL, or
	// after the sweep already released it.
	ErrHoldExpired = errors.New("hold expired")

	// ErrConcurrencyConflict is returned when lock contention or a version
	// check could not be resolved within the retry budget.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when inserting a record whose key exists.
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvariantViolation signals a bug: a ledger counter would go negative.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrPaymentDeclined is returned when the payment gateway refuses a
	// charge or refund. The outcome is still recorded in the ledger.
	ErrPaymentDeclined = errors.New("payment declined")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError reports an action attempted from a status that does not
// allow it. Reason is set when the status allows the action but a temporal
// precondition (e.g. the check-in window) does not hold.
type TransitionError struct {
	BookingID string
	From      BookingStatus
	Action    string
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s booking %s in status %s", e.Action, e.BookingID, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// CapacityError names the first date in the stay that could not be held.
type CapacityError struct {
	RoomTypeID string
	Date       Date
	Requested  int
	Available  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity unavailable: room type %s on %s (requested %d, free %d)",
		e.RoomTypeID, e.Date, e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityUnavailable
}

// HoldExpiredError identifies the hold that could no longer be used.
type HoldExpiredError struct {
	Token  string
	Status HoldStatus
}

func (e *HoldExpiredError) Error() string {
	return fmt.Sprintf("hold %s is no longer usable (status %s)", e.Token, e.Status)
}

func (e *HoldExpiredError) Unwrap() error {
	return ErrHoldExpired
}

// InvariantError describes the counter that would have gone negative.
type InvariantError struct {
	RoomTypeID string
	Date       Date
	Counter    string
	Value      int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s for room type %s on %s would be %d",
		e.Counter, e.RoomTypeID, e.Date, e.Value)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound is shorthand for a *NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Conflict wraps ErrConcurrencyConflict with context.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConcurrencyConflict, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is caller-recoverable.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrCapacityUnavailable) ||
		errors.Is(err, ErrHoldExpired) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrPaymentDeclined)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFatal returns true for errors that indicate a bug rather than a
// recoverable condition.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
