// Package apperror defines the error taxonomy shared by every layer.
//
// Each kind is a sentinel (ErrAuth, ErrNotFound, ...) wrapped in an *AppError
// carrying a human-readable message. Callers branch with errors.Is on the
// sentinel and show AppError.Message to the user:
//
//	if errors.Is(err, apperror.ErrNotFound) { ... }
//
// The HTTP layer maps kinds to status codes (see handler/response.go); the
// CLI prints the message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrAuth       = errors.New("auth error")
	ErrNotFound   = errors.New("not found")
	ErrRemote     = errors.New("remote error")
	ErrParse      = errors.New("parse error")
	ErrStorage    = errors.New("storage error")
	ErrValidation = errors.New("validation error")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // human-readable error message
	Field   string // optional: field causing a validation error
	Status  int    // optional: HTTP status reported by the remote API
	Cause   error  // optional: underlying error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// matches the kind and errors.As still reaches transport errors.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// Auth reports a missing or rejected credential.
func Auth(message string) *AppError {
	return &AppError{
		Err:     ErrAuth,
		Message: message,
	}
}

func NotFound(resource, id string) *AppError {
	msg := fmt.Sprintf("%s not found", resource)
	if id != "" {
		msg = fmt.Sprintf("%s not found with id %s", resource, id)
	}
	return &AppError{
		Err:     ErrNotFound,
		Message: msg,
	}
}

// Remote reports a non-2xx answer from the remote API. message is the
// server-supplied message when there is one.
func Remote(op string, status int, message string) *AppError {
	if message == "" {
		message = "Unknown error"
	}
	return &AppError{
		Err:     ErrRemote,
		Message: fmt.Sprintf("failed to %s: %s", op, message),
		Status:  status,
	}
}

// Transport wraps a network failure talking to the remote API.
func Transport(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrRemote,
		Message: fmt.Sprintf("failed to %s", op),
		Cause:   cause,
	}
}

func Parse(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrParse,
		Message: message,
		Cause:   cause,
	}
}

// Storage wraps a local persistence failure.
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: fmt.Sprintf("storage: %s", op),
		Cause:   cause,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}
