package services

import (
	"errors"
	"fmt"

	"coinPusherAPI/internal/store"
)

var (
	// ErrInvalidInput marks malformed arguments. Not retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserNotFound marks a reference to a user that does not exist. Not retried.
	ErrUserNotFound = errors.New("user not found")
	// ErrTransient marks a store or feed failure the caller may retry.
	ErrTransient = errors.New("temporarily unavailable")
	// ErrUnauthorized marks an operation that needs an active session.
	ErrUnauthorized = errors.New("no active session")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storeError maps a store failure onto the service error kinds.
func storeError(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if errors.Is(err, store.ErrScoreOverflow) {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
