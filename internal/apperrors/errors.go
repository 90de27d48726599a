// Package apperrors provides the dispatch substrate's structured error kinds
// and the propagation policy from spec section 7: programmer errors
// (ArgumentNull/Invalid) and cancellation cross component boundaries
// unchanged, everything else is captured into a statistics counter or
// row-level status field by its caller.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies one of the error kinds named in the dispatch error
// handling design, not a Go type.
type ErrorCode string

const (
	// Argument errors: rejected at entry, never logged as a failure.
	ErrCodeArgumentNull    ErrorCode = "ARG_1001"
	ErrCodeArgumentInvalid ErrorCode = "ARG_1002"

	// Cancelled is re-surfaced unchanged; never converted to a failure or retry.
	ErrCodeCancelled ErrorCode = "CANCEL_2001"

	// TransportFailure is caught by the publisher, recorded on the outbox
	// row, and retried up to maxRetries.
	ErrCodeTransportFailure ErrorCode = "XPORT_3001"

	// HandlerFailure is caught by saga/batch processor loops and logged;
	// it never cascades to the caller.
	ErrCodeHandlerFailure ErrorCode = "HANDLER_3002"

	// IntegrityViolation is reported structurally through
	// AuditIntegrityResult, never thrown; this code exists for the rare
	// case a caller needs to wrap it as an error value.
	ErrCodeIntegrityViolation ErrorCode = "AUDIT_4001"

	// ConfigurationMissing surfaces at start-up and prevents a loop from
	// starting.
	ErrCodeConfigurationMissing ErrorCode = "CONFIG_5001"

	// MetaAuditFailure is swallowed inside the RBAC guard; never propagated.
	ErrCodeMetaAuditFailure ErrorCode = "AUDIT_4002"

	// Resource errors, used by stores for not-found/conflict conditions.
	ErrCodeNotFound ErrorCode = "RES_6001"
	ErrCodeConflict ErrorCode = "RES_6002"

	// Internal/database errors.
	ErrCodeInternal      ErrorCode = "SVC_7001"
	ErrCodeDatabaseError ErrorCode = "SVC_7002"
)

// ServiceError is a structured error carrying a kind, message, HTTP status
// for the health/metrics surface, and optional details.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail and returns the receiver for
// chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError with no wrapped cause.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a ServiceError around an existing cause.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// ArgumentNull reports a required argument that was empty or nil. Never
// logged as a failure by callers; rejected at entry.
func ArgumentNull(argument string) *ServiceError {
	return New(ErrCodeArgumentNull, "required argument was empty", http.StatusBadRequest).
		WithDetails("argument", argument)
}

// ArgumentInvalid reports an argument that failed a structural check (e.g.
// startDate > endDate, negative duration).
func ArgumentInvalid(argument, reason string) *ServiceError {
	return New(ErrCodeArgumentInvalid, "argument failed validation", http.StatusBadRequest).
		WithDetails("argument", argument).
		WithDetails("reason", reason)
}

// TransportFailure wraps an adapter send error for a given transport name.
func TransportFailure(transport string, err error) *ServiceError {
	return Wrap(ErrCodeTransportFailure, "transport send failed", http.StatusBadGateway, err).
		WithDetails("transport", transport)
}

// HandlerFailure wraps a saga/batch handler panic or returned error.
func HandlerFailure(handler string, err error) *ServiceError {
	return Wrap(ErrCodeHandlerFailure, "handler invocation failed", http.StatusInternalServerError, err).
		WithDetails("handler", handler)
}

// IntegrityViolation reports a hash-chain break at a specific event.
func IntegrityViolation(eventID string) *ServiceError {
	return New(ErrCodeIntegrityViolation, "audit hash chain integrity violation", http.StatusInternalServerError).
		WithDetails("eventId", eventID)
}

// ConfigurationMissing reports a missing operational dependency (e.g. an
// unregistered transport adapter) that prevents a loop from starting.
func ConfigurationMissing(component string) *ServiceError {
	return New(ErrCodeConfigurationMissing, "required configuration missing", http.StatusFailedDependency).
		WithDetails("component", component)
}

// MetaAuditFailure wraps a failure to record a meta-audit entry. Callers
// swallow this; it is never propagated out of the RBAC guard.
func MetaAuditFailure(err error) *ServiceError {
	return Wrap(ErrCodeMetaAuditFailure, "meta-audit record failed", http.StatusInternalServerError, err)
}

// NotFound reports a missing row for the given resource/id.
func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Conflict reports an optimistic-concurrency or uniqueness conflict.
func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Internal wraps an unclassified internal error.
func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// DatabaseError wraps a store-layer error with the failing operation name.
func DatabaseError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

// IsServiceError reports whether err is (or wraps) a *ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status carried by a ServiceError, or 500.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
