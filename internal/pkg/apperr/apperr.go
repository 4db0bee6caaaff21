package apperr

import (
	"errors"
	"net/http"
)

// Error is a typed, status-aware application error. The Code is safe to expose
// to callers; Err keeps the underlying detail for logs only.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Base errors for the failure classes this service distinguishes.
var (
	// Configuration: missing provider credentials. Fatal, never retried.
	ErrConfiguration = &Error{Code: "not_configured", Status: http.StatusInternalServerError}
	// Validation: malformed caller input.
	ErrValidation = &Error{Code: "invalid_request", Status: http.StatusBadRequest}
	// Authentication: no caller identity established.
	ErrAuthentication = &Error{Code: "unauthorized", Status: http.StatusUnauthorized}
	// State: invalid or expired CSRF state token; aborts before provider contact.
	ErrState = &Error{Code: "invalid_state", Status: http.StatusBadRequest}
	// Upstream: provider HTTP failure during exchange or profile fetch.
	ErrUpstream = &Error{Code: "upstream_failed", Status: http.StatusBadGateway}
	// Signature: webhook authenticity failure; precedes any event interpretation.
	ErrSignature = &Error{Code: "invalid_signature", Status: http.StatusBadRequest}
	// Persistence: storage failure; OAuth callers restart, webhook senders redeliver.
	ErrPersistence = &Error{Code: "storage_failed", Status: http.StatusInternalServerError}
)

// New returns a fresh error with an explicit code, status and message.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap classifies err under base, optionally overriding the public code.
func Wrap(err error, base *Error, code string) *Error {
	if err == nil {
		return nil
	}
	out := *base
	if code != "" {
		out.Code = code
	}
	out.Err = err
	return &out
}

// CodeOf extracts the public code from err, defaulting to internal_error.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "internal_error"
}

// StatusOf extracts the HTTP status from err, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return http.StatusInternalServerError
}
