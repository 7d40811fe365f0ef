package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("job not found")
	ErrNotCancellable = errors.New("job is in a terminal state")
	// ErrCancelled is returned from a worker checkpoint when an external
	// cancellation signal arrived mid-process.
	ErrCancelled = errors.New("job cancelled")
)

// ErrorKind classifies a processing failure. Retry decisions key off the
// kind, never off message text.
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation"
	KindUnknownConfiguration ErrorKind = "unknown_configuration"
	KindHashMismatch         ErrorKind = "hash_mismatch"
	KindTransient            ErrorKind = "transient"
	KindTimeout              ErrorKind = "timeout"
	KindInternal             ErrorKind = "internal"
)

// Retryable reports whether a failure of this kind may succeed on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindValidation, KindUnknownConfiguration, KindHashMismatch:
		return false
	default:
		return true
	}
}

// Error is a classified processing failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Classify maps any processing error to a kind. Untagged errors count as
// internal, which retries.
func Classify(err error) ErrorKind {
	var jobErr *Error
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}
