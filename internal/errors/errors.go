// ABOUTME: Error taxonomy for grid dispatch and standardized JSON error helpers.
// ABOUTME: Grid failures carry a Kind; WriteError serves non-grid HTTP endpoints.

package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a grid dispatch failure.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindInvalidGrid   Kind = "invalid_grid"
	KindAccessDenied  Kind = "access_denied"
	KindActionFailure Kind = "action_failure"
)

// Error is a classified grid dispatch failure. Message is what the caller
// sees in the {"error": ...} envelope.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing grid name, grid, or action.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidGrid reports a grid source that did not produce a descriptor.
func InvalidGrid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidGrid, Message: fmt.Sprintf(format, args...)}
}

// AccessDenied reports a failed grid or action access check.
func AccessDenied(message string) *Error {
	return &Error{Kind: KindAccessDenied, Message: message}
}

// ActionFailure wraps an unclassified error raised while executing an action.
func ActionFailure(err error) *Error {
	return &Error{Kind: KindActionFailure, Message: err.Error(), Err: err}
}

// KindOf returns the Kind of err, or KindActionFailure for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindActionFailure
}

// Is reports whether err is a classified error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == kind
}

// ErrorResponse is the standardized error response structure for plain
// (non-grid) JSON endpoints.
//
// Usage:
//
//	WriteError(w, http.StatusBadRequest, "invalid_request", "lang must be numeric")
type ErrorResponse struct {
	Code    string `json:"code"`              // Machine-readable error code (e.g., "invalid_request", "not_found")
	Message string `json:"message"`           // Human-readable error message
	Status  int    `json:"status"`            // HTTP status code
	Field   string `json:"field,omitempty"`   // Optional: field that caused the error
	Details string `json:"details,omitempty"` // Optional: additional error details
}

// WriteError writes a standardized error response to the HTTP response writer.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeErrorResponse(w, ErrorResponse{
		Code:    code,
		Message: message,
		Status:  status,
	})
}

// WriteErrorWithField writes a standardized error response with a field reference.
// Use this for validation errors where you want to indicate which field caused the error.
func WriteErrorWithField(w http.ResponseWriter, status int, code, message, field string) {
	writeErrorResponse(w, ErrorResponse{
		Code:    code,
		Message: message,
		Status:  status,
		Field:   field,
	})
}

func writeErrorResponse(w http.ResponseWriter, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(resp)
}

// Codes used by WriteError.
const (
	ErrInvalidRequest = "invalid_request"
	ErrNotFound       = "not_found"
	ErrForbidden      = "forbidden"
	ErrInternal       = "internal_error"
	ErrDatabaseError  = "database_error"
)
