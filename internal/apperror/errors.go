// Package apperror provides domain-specific error types for the HR platform.
// These errors carry an HTTP status code, a user-safe message, and an
// optional machine-readable reason. The Echo error handler maps them to HTTP
// responses in one place.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable reasons attached to errors so clients can branch without
// parsing messages.
const (
	ReasonInvalidCredentials  = "INVALID_CREDENTIALS"
	ReasonAccountLocked       = "ACCOUNT_LOCKED"
	ReasonEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	ReasonInvalidToken        = "INVALID_TOKEN"
	ReasonTokenExpired        = "TOKEN_EXPIRED"
	ReasonInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	ReasonRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
	ReasonInvalidClient       = "INVALID_CLIENT"
	ReasonMissingClientID     = "MISSING_CLIENT_ID"
	ReasonEmailExists         = "EMAIL_EXISTS"
	ReasonTermsNotAccepted    = "TERMS_NOT_ACCEPTED"
	ReasonValidationFailed    = "VALIDATION_FAILED"
	ReasonUnauthorized        = "UNAUTHORIZED"
	ReasonForbidden           = "FORBIDDEN"
	ReasonRateLimited         = "RATE_LIMITED"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Reason is an optional finer-grained code (e.g., "ACCOUNT_LOCKED").
	Reason string `json:"reason,omitempty"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithReason sets the machine-readable reason and returns the same error so
// it can be chained onto a constructor.
func (e *AppError) WithReason(reason string) *AppError {
	e.Reason = reason
	return e
}

// --- Constructors for common error types ---

// NewBadRequest creates a 400 Bad Request error. Used for every validation
// failure the auth flows raise (missing client ID, terms not accepted, etc.).
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    "bad_request",
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "unauthorized",
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "conflict",
		Message: message,
	}
}

// NewTooManyRequests creates a 429 error for rate-limited callers.
func NewTooManyRequests(message string) *AppError {
	return &AppError{
		Code:    http.StatusTooManyRequests,
		Type:    "rate_limited",
		Reason:  ReasonRateLimited,
		Message: message,
	}
}

// errMissingContext is the shared internal error for nil precondition checks.
var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 error for handler nil-context guards
// (e.g. authenticated claims not set because a route skipped the bearer
// middleware).
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// ReasonOf returns the machine-readable reason of an AppError, or "" for
// any other error.
func ReasonOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}
