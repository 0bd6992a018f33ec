package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced folder or canvas id does not exist.
	ErrNotFound = errors.New("catalog: resource not found")
	// ErrProtectedResource indicates an attempt to delete the Default folder.
	ErrProtectedResource = errors.New("catalog: protected resource")
	// ErrActiveResourceInUse indicates an attempt to delete the active canvas
	// or a folder containing it.
	ErrActiveResourceInUse = errors.New("catalog: active resource in use")
	// ErrStoreUnavailable indicates the durable store has not been
	// initialized yet. Background callers treat it as a benign no-op.
	ErrStoreUnavailable = errors.New("catalog: store unavailable")
	// ErrInvalidName indicates an empty or oversized folder or canvas name.
	ErrInvalidName = errors.New("catalog: invalid name")
)

// ServiceError carries an operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
