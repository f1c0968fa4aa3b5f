// Package apperrors defines the error taxonomy shared by the service and
// transport layers. Services wrap these sentinels with context via fmt.Errorf
// and %w; the HTTP layer maps them to response codes with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an absent order or principal.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks a role mismatch.
	ErrForbidden = errors.New("forbidden")

	// ErrStateConflict marks an invalid transition or a stale assertion,
	// e.g. a redirect trying to cancel an already-confirmed order.
	ErrStateConflict = errors.New("state conflict")

	// ErrGateway marks a failed or timed-out call to the payment gateway.
	ErrGateway = errors.New("payment gateway error")

	// ErrInvalidSignature marks a webhook notification that failed
	// authenticity verification. Handlers must reject without mutating state.
	ErrInvalidSignature = errors.New("invalid signature")
)

func Validation(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func Forbidden(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

func StateConflict(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrStateConflict)...)
}
