package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a storyboard error code.
type ErrorCode string

const (
	ErrIOFailure           ErrorCode = "IO_FAILURE"           // 500
	ErrSchemaFailure       ErrorCode = "SCHEMA_FAILURE"       // 500
	ErrConstraintViolation ErrorCode = "CONSTRAINT_VIOLATION" // 409
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrValidationFailure   ErrorCode = "VALIDATION_FAILURE"   // 400
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrGenerationFailure   ErrorCode = "GENERATION_FAILURE"   // 502
	ErrInternal            ErrorCode = "INTERNAL"             // 500
)

// StoryError represents a structured error with code, status, and details.
type StoryError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *StoryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StoryError) Unwrap() error {
	return e.cause
}

// NewIOFailure creates an error for an inaccessible file or directory.
func NewIOFailure(path string, err error) *StoryError {
	msg := fmt.Sprintf("cannot access %s", path)
	if err != nil {
		msg = fmt.Sprintf("cannot access %s: %v", path, err)
	}
	return &StoryError{
		Code:    ErrIOFailure,
		Status:  500,
		Message: msg,
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewSchemaFailure creates an error for a database whose schema could not be made usable.
func NewSchemaFailure(table string, err error) *StoryError {
	msg := fmt.Sprintf("table %s is not usable", table)
	if err != nil {
		msg = fmt.Sprintf("table %s is not usable: %v", table, err)
	}
	return &StoryError{
		Code:    ErrSchemaFailure,
		Status:  500,
		Message: msg,
		Details: map[string]any{"table": table},
		cause:   err,
	}
}

// NewConstraintViolation creates a 409 error for a rejected row.
func NewConstraintViolation(msg string, err error) *StoryError {
	return &StoryError{
		Code:    ErrConstraintViolation,
		Status:  409,
		Message: msg,
		cause:   err,
	}
}

// NewNotFound creates a 404 error for a missing project, shot or asset.
func NewNotFound(kind, identifier string) *StoryError {
	return &StoryError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewValidationFailure creates a 400 error for input that breaks a rule.
func NewValidationFailure(msg string) *StoryError {
	return &StoryError{
		Code:    ErrValidationFailure,
		Status:  400,
		Message: msg,
	}
}

// NewNameAlreadyExists creates a validation error for a project name collision.
func NewNameAlreadyExists(name string) *StoryError {
	return &StoryError{
		Code:    ErrValidationFailure,
		Status:  400,
		Message: fmt.Sprintf("a project named %q already exists", name),
		Details: map[string]any{"name": name},
	}
}

// NewInvalidRequest creates a 400 error for malformed request parameters.
func NewInvalidRequest(msg string) *StoryError {
	return &StoryError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewGenerationFailure creates a 502 error for a failed call to a generation API.
func NewGenerationFailure(api string, err error) *StoryError {
	msg := fmt.Sprintf("generation API %s failed", api)
	if err != nil {
		msg = fmt.Sprintf("generation API %s failed: %v", api, err)
	}
	return &StoryError{
		Code:    ErrGenerationFailure,
		Status:  502,
		Message: msg,
		Details: map[string]any{"api": api},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *StoryError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &StoryError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err, or any error it wraps, is a StoryError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *StoryError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the StoryError in err's chain, if any.
func As(err error) (*StoryError, bool) {
	var sErr *StoryError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}
