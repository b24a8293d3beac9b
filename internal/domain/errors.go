package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Application error codes
const (
	EINVALID      = "invalid"        // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"   // Missing or unknown credential
	ENOTFOUND     = "not_found"      // Resource not found
	ECONFLICT     = "conflict"       // Resource conflict (e.g., duplicate)
	EQUOTA        = "quota_exceeded" // Monthly plan quota reached
	ERATELIMIT    = "rate_limit"     // Request rate limit exceeded
	ECONFIG       = "config"         // Server misconfiguration (e.g., unknown plan tier)
	EINTERNAL     = "internal"       // Internal server error
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "AccountService.Register")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return EQUOTA
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return EINVALID
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
// Internal and configuration errors collapse to a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe.Error()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message()
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Code == EINTERNAL || e.Code == ECONFIG {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe.Op
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// UnknownTier reports a plan tier missing from the catalog. Accounts are only
// ever created with catalog tiers, so this indicates bad data or config.
func UnknownTier(op string, tier PlanTier) *Error {
	return &Error{
		Code:    ECONFIG,
		Op:      op,
		Message: fmt.Sprintf("unknown plan tier %q", string(tier)),
	}
}

// QuotaExceededError is returned when an account has used its whole monthly
// allowance. Usage and Limit are exposed to clients for backoff decisions.
type QuotaExceededError struct {
	Op    string
	Usage int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("Monthly limit exceeded (%d of %d used)", e.Usage, e.Limit)
}

// QuotaExceeded creates a quota exceeded error.
func QuotaExceeded(op string, usage, limit int) *QuotaExceededError {
	return &QuotaExceededError{
		Op:    op,
		Usage: usage,
		Limit: limit,
	}
}

// IsQuotaExceeded reports whether err carries a QuotaExceededError and returns it.
func IsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// ValidationError represents field-level validation errors.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// Message joins the field errors in field order.
func (e *ValidationError) Message() string {
	fields := lo.Keys(e.Fields)
	slices.Sort(fields)
	return strings.Join(lo.Map(fields, func(f string, _ int) string {
		return e.Fields[f]
	}), "; ")
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}

// AddFieldError adds a field error to an existing validation error.
// If err is not a ValidationError, returns a new one.
func AddFieldError(err error, field, message string) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}
	return NewValidationError("", field, message)
}
