// Package apperrors defines the error kinds shared by services and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict: a dispatch is already running, or the campaign is not in
	// a state the requested transition can start from.
	ErrConflict = errors.New("conflict")
	// ErrTokenCollision is returned by storage when a freshly minted tracking
	// id is already taken by another recipient.
	ErrTokenCollision = errors.New("tracking id collision")
)

// ValidationError is an operator input problem. Unprocessable marks input that
// is well-formed but cannot be acted on (e.g. an audience that resolves to nobody).
type ValidationError struct {
	Msg           string
	Unprocessable bool
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func Unprocessable(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...), Unprocessable: true}
}

func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
