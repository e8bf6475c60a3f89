package model

import (
	"fmt"
	"strings"
	"time"
)

// CastError reports a value that cannot be converted to the type expected at
// a path: a malformed identifier or an uncastable filter value.
type CastError struct {
	Kind  string
	Value any
	Path  string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("Cast to %s failed for value %q (type %s) at path %q",
		e.Kind, fmt.Sprint(e.Value), valueType(e.Value), e.Path)
}

// NewIDCastError is the CastError stores return for malformed identifiers.
func NewIDCastError(kind, value string) *CastError {
	return &CastError{Kind: kind, Value: value, Path: IDField}
}

// DuplicateKeyError reports a unique constraint violation.
type DuplicateKeyError struct {
	Collection string
	Keys       []string
	Err        error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key error collection: %s keys: %s",
		e.Collection, strings.Join(e.Keys, ", "))
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

// FieldError is one failed check inside a ValidationError.
type FieldError struct {
	Path    string
	Kind    string
	Message string
}

// ValidationError collects every failed field check of a document.
type ValidationError struct {
	Errors []FieldError
}

// Add records a failed check.
func (e *ValidationError) Add(path, kind, msg string) {
	e.Errors = append(e.Errors, FieldError{Path: path, Kind: kind, Message: msg})
}

// Error joins the messages with commas.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, ",")
}

// Fields maps each failed path to its message.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Path] = fe.Message
	}
	return out
}

// OrNil returns e as an error, or nil when nothing failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func valueType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64:
		return "number"
	case time.Time:
		return "Date"
	case map[string]any:
		return "Object"
	case []any:
		return "Array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
