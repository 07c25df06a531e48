package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of these.
var (
	ErrNotFound           = errors.New("not found")
	ErrArgument           = errors.New("invalid argument")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNotImplemented     = errors.New("not implemented")
)

// Error is a domain error carrying its kind and the entity it concerns
type Error struct {
	Kind    error
	Entity  string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Kind)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NewNotFoundError reports a missing entity
func NewNotFoundError(entity string) error {
	return &Error{Kind: ErrNotFound, Entity: entity, Message: fmt.Sprintf("%s not found", entity)}
}

// NewArgumentError reports an operation against an incompatible state or input
func NewArgumentError(entity, message string) error {
	return &Error{Kind: ErrArgument, Entity: entity, Message: message}
}

// NewConflictError reports contention on a shared resource
func NewConflictError(entity, message string) error {
	return &Error{Kind: ErrConflict, Entity: entity, Message: message}
}

// NewServiceUnavailableError reports a missing or malformed backend result
func NewServiceUnavailableError(message string) error {
	return &Error{Kind: ErrServiceUnavailable, Message: message}
}

// NewNotImplementedError reports an unsupported variant
func NewNotImplementedError(message string) error {
	return &Error{Kind: ErrNotImplemented, Message: message}
}

// Transaction state errors
var (
	ErrTransactionAlreadyConfirmed = NewArgumentError("transaction", "Transaction already confirmed")
	ErrTransactionAlreadyCanceled  = NewArgumentError("transaction", "Transaction already canceled")
	ErrTransactionAlreadyExpired   = NewArgumentError("transaction", "Transaction already expired")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsArgumentError checks if the error is an argument error
func IsArgumentError(err error) bool {
	return errors.Is(err, ErrArgument)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsServiceUnavailableError checks if the error is a service unavailable error
func IsServiceUnavailableError(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsNotImplementedError checks if the error is a not implemented error
func IsNotImplementedError(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}
