// Package errs holds the error kinds shared by every layer of the service.
// Lower layers wrap these sentinels so handlers can map them with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrPermission      = errors.New("permission denied")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrValidation      = errors.New("validation failed")
	ErrStore           = errors.New("store failure")
)

// Validation returns an ErrValidation carrying a user-facing reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidState returns an ErrInvalidState carrying a user-facing reason.
func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Store wraps a backend failure of op. Errors that already carry a kind are
// returned wrapped but unchanged in kind.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

// Kind reports which sentinel err wraps, or nil.
func Kind(err error) error {
	for _, kind := range []error{ErrUnauthenticated, ErrPermission, ErrNotFound, ErrInvalidState, ErrValidation, ErrStore} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
