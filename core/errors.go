package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports a malformed or unsatisfiable request. It is
// raised before any SQL reaches the engine.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationErrorf(tpl string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(tpl, args...)}
}

// NotFoundError reports a missing file or path.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func NewNotFoundErrorf(tpl string, args ...any) *NotFoundError {
	return &NotFoundError{Msg: fmt.Sprintf(tpl, args...)}
}

// ExecutionError wraps an engine-side failure together with the query
// that triggered it. The full text is surfaced to the caller.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
