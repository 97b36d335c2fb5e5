/*
errors.go - Centralized error taxonomy for the rewards engine

PURPOSE:
  All error kinds in one place. Engines return either a kind sentinel, a
  specific sentinel that unwraps to a kind, or a structured error that
  carries context and unwraps to a kind. The API maps kinds to status codes
  with errors.Is and never inspects messages.

ERROR KINDS:
  ErrUnauthorized        401
  ErrForbidden           403
  ErrNotFound            404
  ErrInvalidInput        400
  ErrConflict            409
  ErrInsufficientPoints  400
  ErrInsufficientBudget  400
  ErrGone                410
  ErrTooManyRequests     429
  ErrUnavailable         503

USAGE:
    if errors.Is(err, loyalty.ErrNotFound) { ... }

    var ipe *loyalty.InsufficientPointsError
    if errors.As(err, &ipe) { log.Printf("short by %d", ipe.Shortfall()) }

SEE ALSO:
  - api/errors.go: kind -> HTTP status mapping
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// KINDS - Use with errors.Is()
// =============================================================================

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInsufficientBudget = errors.New("insufficient event budget")
	ErrGone               = errors.New("gone")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrUnavailable        = errors.New("unavailable")
)

// =============================================================================
// SPECIFIC ERRORS - Unwrap to a kind
// =============================================================================

// kindError is a named error that belongs to a kind.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKind(kind error, msg string) error { return &kindError{msg: msg, kind: kind} }

var (
	ErrUserNotFound        = newKind(ErrNotFound, "user not found")
	ErrTransactionNotFound = newKind(ErrNotFound, "transaction not found")
	ErrEventNotFound       = newKind(ErrNotFound, "event not found")
	ErrPromotionNotFound   = newKind(ErrNotFound, "promotion not found")
	ErrNotAGuest           = newKind(ErrNotFound, "user is not a guest")
	ErrNotAnOrganizer      = newKind(ErrNotFound, "user is not an organizer")
	ErrResetTokenNotFound  = newKind(ErrNotFound, "reset token not found")

	// ErrAlreadyProcessed is returned when a redemption is processed twice.
	ErrAlreadyProcessed = newKind(ErrConflict, "redemption already processed")
	ErrAlreadyGuest     = newKind(ErrConflict, "user is already a guest")
	ErrAlreadyOrganizer = newKind(ErrConflict, "user is an organizer")
	ErrDuplicateUser    = newKind(ErrConflict, "user already exists")

	ErrWrongType         = newKind(ErrInvalidInput, "transaction has the wrong type")
	ErrInvalidTransition = newKind(ErrInvalidInput, "invalid state transition")
	ErrUnverified        = newKind(ErrForbidden, "user is not verified")
	ErrWrongPassword     = newKind(ErrForbidden, "incorrect current password")

	ErrEventFull         = newKind(ErrGone, "event is full")
	ErrEventEnded        = newKind(ErrGone, "event has ended")
	ErrResetTokenExpired = newKind(ErrGone, "reset token expired")

	ErrBadCredentials = newKind(ErrUnauthorized, "invalid credentials")
	ErrTokenMismatch  = newKind(ErrUnauthorized, "reset token belongs to another user")

	ErrResetCooldown = newKind(ErrTooManyRequests, "a reset was requested too recently")
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
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientPointsError provides details about a balance shortage.
type InsufficientPointsError struct {
	UserID    int64
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Shortfall() int64 { return e.Requested - e.Available }

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// InsufficientBudgetError is returned when an award exceeds an event's
// remaining points.
type InsufficientBudgetError struct {
	EventID   int64
	Remaining int64
	Requested int64
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("insufficient event budget: remaining %d, requested %d", e.Remaining, e.Requested)
}

func (e *InsufficientBudgetError) Unwrap() error { return ErrInsufficientBudget }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	for _, kind := range []error{
		ErrUnauthorized, ErrForbidden, ErrNotFound, ErrInvalidInput, ErrConflict,
		ErrInsufficientPoints, ErrInsufficientBudget, ErrGone, ErrTooManyRequests,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
