// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")

	// Lesson pipeline errors. These four are the user-visible taxonomy.
	ErrAccessDenied     = errors.New("access denied")
	ErrGenerationFailed = errors.New("generation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStaleResult      = errors.New("stale result")

	// Account and session errors
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAccountLocked       = errors.New("account locked")
	ErrMaintenance         = errors.New("maintenance mode")
	ErrRequestInFlight     = errors.New("content request already in flight")
	ErrSignupDisabled      = errors.New("signup disabled")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "curriculum", "account", "navigation"
	Op      string // Operation that failed, e.g., "Evaluate", "Navigate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Curriculum domain errors
var (
	ErrContentNotFound  = NewDomainError("curriculum", "Get", ErrNotFound, "content not found")
	ErrInvalidSelector  = NewDomainError("curriculum", "Validate", ErrInvalidInput, "invalid curriculum selector")
	ErrUnknownContent   = NewDomainError("curriculum", "Validate", ErrInvalidInput, "unknown content type")
	ErrClassNotAllowed  = NewDomainError("curriculum", "Validate", ErrValueOutOfRange, "class level is not offered")
	ErrEmptyContentBody = NewDomainError("curriculum", "Validate", ErrEmptyValue, "content body is empty")
)

// Account domain errors
var (
	ErrUserNotFound       = NewDomainError("account", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists  = NewDomainError("account", "Create", ErrAlreadyExists, "user already exists")
	ErrInvalidUserID      = NewDomainError("account", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidCredentials = NewDomainError("account", "Login", ErrUnauthorized, "invalid id or password")
	ErrNotAdmin           = NewDomainError("account", "Authorize", ErrForbidden, "admin role required")
	ErrSessionNotFound    = NewDomainError("account", "FindSession", ErrNotFound, "session not found")
)

// Navigation domain errors
var (
	ErrIllegalTransition = NewDomainError("navigation", "Navigate", ErrStateTransition, "event not allowed in current view")
	ErrNotImpersonating  = NewDomainError("navigation", "Return", ErrInvalidState, "no impersonation in progress")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsAccessDenied reports ACCESS_DENIED, including insufficient credits and locked accounts.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsGenerationFailed reports GENERATION_FAILED.
func IsGenerationFailed(err error) bool {
	return errors.Is(err, ErrGenerationFailed)
}

// IsStoreUnavailable reports STORE_UNAVAILABLE.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsStale reports STALE_RESULT.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleResult)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// ErrorCode maps an error to its stable wire code. Order matters: policy
// denials wrap ErrAccountLocked but are reported as ACCESS_DENIED.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrGenerationFailed):
		return "GENERATION_FAILED"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	case errors.Is(err, ErrAccountLocked):
		return "ACCOUNT_LOCKED"
	case errors.Is(err, ErrMaintenance):
		return "MAINTENANCE"
	case errors.Is(err, ErrRequestInFlight):
		return "REQUEST_IN_FLIGHT"
	case errors.Is(err, ErrStaleResult):
		return "STALE_RESULT"
	case errors.Is(err, ErrSignupDisabled):
		return "SIGNUP_DISABLED"
	case errors.Is(err, ErrInsufficientCredits):
		return "INSUFFICIENT_CREDITS"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSessionNotFound):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case IsNotFound(err):
		return "NOT_FOUND"
	case IsAlreadyExists(err):
		return "CONFLICT"
	case errors.Is(err, ErrStateTransition), errors.Is(err, ErrInvalidState):
		return "ILLEGAL_TRANSITION"
	case IsValidation(err):
		return "VALIDATION"
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrTimeout):
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
