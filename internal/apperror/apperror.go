// Package apperror defines the error taxonomy shared by every layer.
//
// Services and repositories return *AppError values that wrap one of the
// sentinel errors below. The HTTP layer maps the sentinel to a status code
// in exactly one place (handler.writeError), so no other layer needs to know
// about HTTP.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
)

type AppError struct {
	Err     error             // sentinel
	Message string            // single-line, client-safe message
	Field   string            // optional: field causing the error
	Fields  map[string]string // optional: per-field messages for multi-field validation
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Fields:  map[string]string{field: message},
	}
}

// InvalidFields builds one validation error out of several field messages.
// The combined Message lists the fields in a stable order so the same input
// always produces the same single-line message.
func InvalidFields(fields map[string]string) *AppError {
	if len(fields) == 1 {
		for f, m := range fields {
			return ValidationFailed(f, m)
		}
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(names))
	for _, f := range names {
		msgs = append(msgs, fields[f])
	}

	return &AppError{
		Err:     ErrValidation,
		Message: strings.Join(msgs, "; "),
		Fields:  fields,
	}
}

// Conflict reports a uniqueness or state clash: duplicate email, duplicate
// join, joining an inactive challenge.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Upstream reports that a third-party service (the GitHub OAuth API) failed
// or answered with something unusable. Message is shown to the client, so the
// underlying cause belongs in a wrapping error, not here.
func Upstream(message string) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
	}
}

// Unauthorized is returned for bad credentials and for missing or invalid
// bearer tokens.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
