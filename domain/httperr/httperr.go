// Package httperr defines the uniform HTTP exception used for every error
// response, whatever its origin.
package httperr

import (
	"fmt"
	"net/http"
)

// Defaults applied when an Options field is left empty.
const (
	DefaultMessage = "Something went wrong"
	DefaultStatus  = http.StatusInternalServerError
)

// Error is an error carrying an HTTP status and an optional data payload.
type Error struct {
	Message string
	Status  int
	Data    map[string]any
	Success bool
}

// Options configures New. Zero values fall back to the package defaults.
type Options struct {
	Message string
	Status  int
	Data    map[string]any
	Success bool
}

// New creates an HTTP exception from options.
func New(opts Options) *Error {
	e := &Error{
		Message: opts.Message,
		Status:  opts.Status,
		Data:    opts.Data,
		Success: opts.Success,
	}
	if e.Message == "" {
		e.Message = DefaultMessage
	}
	if e.Status == 0 {
		e.Status = DefaultStatus
	}
	return e
}

// Error implements error.
func (e *Error) Error() string {
	return e.Message
}

// NotFound returns a 404 exception with the given message.
func NotFound(msg string) *Error {
	return New(Options{Message: msg, Status: http.StatusNotFound})
}

// BadRequest returns a 400 exception with the given message.
func BadRequest(msg string) *Error {
	return New(Options{Message: msg, Status: http.StatusBadRequest})
}

// BadRequestf is BadRequest with formatting.
func BadRequestf(format string, args ...any) *Error {
	return BadRequest(fmt.Sprintf(format, args...))
}

// UnsupportedMediaType returns a 415 exception.
func UnsupportedMediaType(msg string) *Error {
	return New(Options{Message: msg, Status: http.StatusUnsupportedMediaType})
}
