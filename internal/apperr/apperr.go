// Package apperr defines the error taxonomy shared across the setlist core.
// Callers classify failures with errors.Is against the four sentinels; the
// HTTP layer maps them onto status codes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a referenced setlist, song, collaborator, account
	// or share code that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden signals a caller below the required permission level.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest signals a structurally invalid mutation.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict signals a state-transition no-op or double action.
	ErrConflict = errors.New("conflict")
)

// NotFound wraps ErrNotFound with a formatted detail message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Forbidden wraps ErrForbidden with a formatted detail message.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// BadRequest wraps ErrBadRequest with a formatted detail message.
func BadRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a formatted detail message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
