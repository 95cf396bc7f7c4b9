// Package errors provides unified error handling for the framework
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a framework error
type Kind string

const (
	// Adapter errors
	KindConflict Kind = "CONFLICT"
	KindNotFound Kind = "NOT_FOUND"
	KindInternal Kind = "INTERNAL"

	// Repository errors
	KindValidation       Kind = "VALIDATION"
	KindOperationBlocked Kind = "OPERATION_BLOCKED"

	// Query errors
	KindQuery       Kind = "QUERY"
	KindPaging      Kind = "PAGING"
	KindUnsupported Kind = "UNSUPPORTED"

	// Task errors
	KindStaleLease Kind = "STALE_LEASE"
	KindInvalidOp  Kind = "INVALID_OPERATION"
)

// FrameworkError represents a structured error with kind, message and cause
type FrameworkError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *FrameworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is works across instances
func (e *FrameworkError) Is(target error) bool {
	var fe *FrameworkError
	if errors.As(target, &fe) {
		return e.Kind == fe.Kind
	}
	return false
}

// New creates a new FrameworkError
func New(kind Kind, format string, args ...interface{}) *FrameworkError {
	return &FrameworkError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with a FrameworkError
func Wrap(kind Kind, err error, format string, args ...interface{}) *FrameworkError {
	return &FrameworkError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf extracts the kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Convenience constructors for the common kinds

func Conflict(table, id string) *FrameworkError {
	return New(KindConflict, "%s: record %q already exists", table, id)
}

func NotFound(table, id string) *FrameworkError {
	return New(KindNotFound, "%s: record %q not found", table, id)
}

func Blocked(table, op string) *FrameworkError {
	return New(KindOperationBlocked, "%s: operation %s is blocked", table, op)
}

func Unsupported(what string) *FrameworkError {
	return New(KindUnsupported, "%s is not supported by this adapter", what)
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict reports whether err is a Conflict error
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}
