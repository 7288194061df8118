package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a topicnav error code.
type ErrorCode string

// Store-level failures. Each maps to a fixed user-facing message; the transport
// detail stays in Cause and is only logged.
const (
	ErrFetchFailed      ErrorCode = "FETCH_FAILED"       // domain list
	ErrPathFetchFailed  ErrorCode = "PATH_FETCH_FAILED"  // ancestor path
	ErrCreateFailed     ErrorCode = "CREATE_FAILED"      // add domain
	ErrUpdateFailed     ErrorCode = "UPDATE_FAILED"      // edit domain
	ErrDeleteFailed     ErrorCode = "DELETE_FAILED"      // delete domain
	ErrPostsFetchFailed ErrorCode = "POSTS_FETCH_FAILED" // posts of the active domain
	ErrSummarizeFailed  ErrorCode = "SUMMARIZE_FAILED"   // summary
)

// Gateway, backend and outer-surface failures.
const (
	ErrNetworkOrServer   ErrorCode = "NETWORK_OR_SERVER_FAILURE" // 502
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"           // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"                 // 404
	ErrNameAlreadyExists ErrorCode = "NAME_ALREADY_EXISTS"       // 409
	ErrInternal          ErrorCode = "INTERNAL"                  // 500
)

var userMessages = map[ErrorCode]string{
	ErrFetchFailed:      "Failed to fetch news topics. Please try again.",
	ErrPathFetchFailed:  "Failed to fetch the news topic path. Please try again.",
	ErrCreateFailed:     "Failed to add news topic. Please try again.",
	ErrUpdateFailed:     "Failed to update news topic. Please try again.",
	ErrDeleteFailed:     "Failed to delete news topic. Please try again.",
	ErrPostsFetchFailed: "Failed to fetch X posts. Please try again.",
	ErrSummarizeFailed:  "Failed to summarize X posts. Please try again.",
}

// NavError represents a structured error with code, status, and details.
type NavError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Cause is the underlying failure. Never rendered to users.
	Cause error
}

// Error implements the error interface.
func (e *NavError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *NavError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the fixed message for a store-level code, or "" for other codes.
func UserMessage(code ErrorCode) string {
	return userMessages[code]
}

// NewStoreFailure wraps a gateway failure in one of the store-level codes.
func NewStoreFailure(code ErrorCode, cause error) *NavError {
	msg, ok := userMessages[code]
	if !ok {
		msg = "Something went wrong. Please try again."
	}
	return &NavError{
		Code:    code,
		Status:  502,
		Message: msg,
		Cause:   cause,
	}
}

// NewNetworkOrServer creates an error for a failed remote call. status is the HTTP
// status returned by the backend, or 0 when the request never completed.
func NewNetworkOrServer(op string, status int, cause error) *NavError {
	msg := fmt.Sprintf("%s failed", op)
	if cause != nil {
		msg = fmt.Sprintf("%s failed: %v", op, cause)
	}
	details := map[string]any{"operation": op}
	if status != 0 {
		details["upstream_status"] = status
	}
	return &NavError{
		Code:    ErrNetworkOrServer,
		Status:  502,
		Message: msg,
		Details: details,
		Cause:   cause,
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *NavError {
	return &NavError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a news topic cannot be found.
func NewNotFound(identifier string) *NavError {
	return &NavError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("news topic not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewNameAlreadyExists creates a 409 error for sibling name collisions.
func NewNameAlreadyExists(parent, name string) *NavError {
	scope := parent
	if scope == "" {
		scope = "root"
	}
	return &NavError{
		Code:    ErrNameAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("news topic %q already exists under %s", name, scope),
		Details: map[string]any{"parent": scope, "name": name},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *NavError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &NavError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Cause:   err,
	}
}

// Is checks if err, or anything it wraps, is a NavError with the given code.
func Is(err error, code ErrorCode) bool {
	var nErr *NavError
	if stderrors.As(err, &nErr) {
		return nErr.Code == code
	}
	return false
}

// As is errors.As specialised to *NavError.
func As(err error) (*NavError, bool) {
	var nErr *NavError
	ok := stderrors.As(err, &nErr)
	return nErr, ok
}
