package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrBackend           = errors.New("backend request failed")
	ErrBusy              = errors.New("another operation is in progress")
	ErrNotConfirmed      = errors.New("operation not confirmed")
	ErrInvalidTransition = errors.New("invalid visit transition")
	ErrNoSelection       = errors.New("no active selection")
)

// ValidationError reports a client-side validation failure on one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is a shorthand for a field validation error.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PartialFailure reports a multi-item operation where only some items succeeded.
type PartialFailure struct {
	Succeeded int
	Total     int
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%d of %d succeeded", e.Succeeded, e.Total)
}

// Result is the outcome of one asynchronous unit of work.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Err wraps a failure.
func Err[T any](err error) Result[T] { return Result[T]{Err: err} }

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool { return r.Err == nil }
