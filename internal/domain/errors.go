// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import "errors"

// ErrorType represents the semantic category of an error
type ErrorType int

const (
	ErrorTypeValidation   ErrorType = iota // Malformed input, dropped without retry
	ErrorTypeNotFound                      // Missing state, treated as empty
	ErrorTypeConflict                      // Competing state, e.g. a blocked session or an already accepted report
	ErrorTypeInternal                      // Unexpected failures, retried
	ErrorTypeUnavailable                   // Transient outages, retried
	ErrorTypeUnauthorized                  // Rejected credentials, resubmitted without them
)

// String returns the lower-case name used in logs and metric attributes.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeConflict:
		return "conflict"
	case ErrorTypeUnavailable:
		return "unavailable"
	case ErrorTypeUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// ErrSessionBlocked is wrapped by the conflict error returned when a session
// start is attempted while a different session is active.
var ErrSessionBlocked = errors.New("another session is active")

// DomainError represents an error with semantic type information
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error // underlying error for wrapping
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// GetErrorType returns the semantic type of an error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeInternal // default fallback
}

// IsRetryable reports whether a failed delivery should be retried later.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorType(err) {
	case ErrorTypeInternal, ErrorTypeUnavailable:
		return true
	default:
		return false
	}
}

// Error constructors for different types
func NewValidationError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeValidation, Message: message, Err: errors.Join(err...)}
}

func NewNotFoundError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeNotFound, Message: message, Err: errors.Join(err...)}
}

func NewConflictError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeConflict, Message: message, Err: errors.Join(err...)}
}

func NewInternalError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeInternal, Message: message, Err: errors.Join(err...)}
}

func NewUnavailableError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeUnavailable, Message: message, Err: errors.Join(err...)}
}

func NewUnauthorizedError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeUnauthorized, Message: message, Err: errors.Join(err...)}
}
