// Package errors provides the domain error taxonomy for the SOC event
// backbone (spec §7): a fixed set of kinds, each carrying its own HTTP
// status, plus the three wire codes the HTTP surface is allowed to
// return.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies one of the taxonomy's kinds.
type ErrorCode string

const (
	ErrCodeValidation             ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeUnknownState           ErrorCode = "UNKNOWN_STATE"
	ErrCodeUnavailable            ErrorCode = "UNAVAILABLE"
	ErrCodeRateLimited            ErrorCode = "RATE_LIMITED"
	ErrCodeInvalidMessage         ErrorCode = "INVALID_MESSAGE"
	ErrCodePoisonMessage          ErrorCode = "POISON_MESSAGE"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// WireCode is one of the three codes the HTTP surface may return in
// {error:{code,...}} per spec §6.1.
type WireCode string

const (
	WireValidation WireCode = "VALIDATION_ERROR"
	WireHTTP       WireCode = "HTTP_ERROR"
	WireInternal   WireCode = "INTERNAL_ERROR"
)

// ServiceError is a typed domain error. Domain services (C6, C7) raise
// these; HTTP adapters translate Code to an HTTPStatus and a WireCode.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WireCode maps a kind to the three HTTP-visible codes (spec §6.1).
func (e *ServiceError) WireCode() WireCode {
	switch e.Code {
	case ErrCodeValidation, ErrCodeUnknownState:
		return WireValidation
	case ErrCodeNotFound, ErrCodeInvalidTransition, ErrCodeConcurrentModification, ErrCodeUnavailable, ErrCodeRateLimited:
		return WireHTTP
	default:
		return WireInternal
	}
}

func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// ValidationError — input shape / enum violation → 422.
func ValidationError(field, reason string) *ServiceError {
	return New(ErrCodeValidation, "validation failed", http.StatusUnprocessableEntity).
		WithDetails("field", field).WithDetails("reason", reason)
}

// NotFound — entity absent → 404.
func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

// InvalidTransition — FSM edge absent → 409.
func InvalidTransition(from, to string, allowed []string) *ServiceError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("cannot transition from %q to %q", from, to), http.StatusConflict).
		WithDetails("from", from).WithDetails("to", to).WithDetails("allowed", allowed)
}

// ConcurrentModification — CAS row-count != 1 → 409.
func ConcurrentModification(resource, id string) *ServiceError {
	return New(ErrCodeConcurrentModification, fmt.Sprintf("%s %s was modified concurrently", resource, id), http.StatusConflict).
		WithDetails("resource", resource).WithDetails("id", id)
}

// UnknownState — target state not in FSM → 409; pass corrupt=true for
// a current-state-not-in-FSM corrupt row, which maps to 500 instead.
func UnknownState(state string, corrupt bool) *ServiceError {
	status := http.StatusConflict
	if corrupt {
		status = http.StatusInternalServerError
	}
	return New(ErrCodeUnknownState, fmt.Sprintf("unknown state %q", state), status).
		WithDetails("state", state).WithDetails("corrupt", corrupt)
}

// Unavailable — backend store unreachable → 503 externally.
func Unavailable(backend string, err error) *ServiceError {
	return Wrap(ErrCodeUnavailable, fmt.Sprintf("%s unavailable", backend), http.StatusServiceUnavailable, err)
}

// RateLimitExceeded — caller over budget → 429.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimited, fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window), http.StatusTooManyRequests).
		WithDetails("limit", limit).WithDetails("window", window)
}

// InvalidMessage — consumer-side hard error, never surfaced to HTTP;
// causes redelivery on the durable backend, drop on in-memory.
func InvalidMessage(reason string) *ServiceError {
	return New(ErrCodeInvalidMessage, reason, 0)
}

// PoisonMessage — consumer-known-unrecoverable; logged, acked.
func PoisonMessage(reason string) *ServiceError {
	return New(ErrCodePoisonMessage, reason, 0)
}

// Internal — unexpected failure → 500.
func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err is a ServiceError of the given kind.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
