package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// Moderation error taxonomy
var (
	// ErrPolicyInput marks a malformed request (no report target, bad callback token).
	ErrPolicyInput = fmt.Errorf("policy input: %w", ErrInvalidInput)
	// ErrStaleResolution is returned when a report is already resolved or being resolved.
	ErrStaleResolution = errors.New("report already resolved")
	// ErrConcurrencyConflict is surfaced only after internal retries are exhausted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrNoPrivileges means the platform refused the action for lack of admin rights.
	ErrNoPrivileges = errors.New("no privileges")
)

// GatewayError wraps any failure of the enforcement surface.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func NewGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

func IsGateway(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

// PolicyInput builds an ErrPolicyInput with a human readable cause.
func PolicyInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPolicyInput, fmt.Sprintf(format, args...))
}
