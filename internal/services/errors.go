package services

import (
	"errors"
	"fmt"

	"photo-trade-backend/internal/repository"
)

// Error kinds surfaced by every service operation
var (
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation_error")
	ErrStorage      = errors.New("storage_error")
	ErrDependency   = errors.New("dependency_failure")
)

// Error is a typed failure: Kind is one of the Err* sentinels, Message is safe to show to clients
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is makes errors.Is(err, ErrConflict) match on Kind
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// storageError classifies a repository error; not-found, duplicate and invalid-id map to their own kinds
func storageError(message string, err error) *Error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return wrapError(ErrNotFound, message, err)
	case errors.Is(err, repository.ErrDuplicate):
		return wrapError(ErrConflict, message, err)
	case errors.Is(err, repository.ErrInvalidID):
		return wrapError(ErrValidation, message, err)
	default:
		return wrapError(ErrStorage, message, err)
	}
}

// asServiceError keeps typed errors and classifies the rest as storage failures
func asServiceError(message string, err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return wrapError(ErrStorage, message, err)
}

// KindOf returns the sentinel kind of err, or ErrStorage for unclassified errors
func KindOf(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return ErrStorage
}

// MessageOf returns the client-facing message of err
func MessageOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return "internal error"
}
