package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by services and the HTTP layer. Match with errors.Is.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrStorageFailure = errors.New("storage failure")
)

// ValidationError carries every failing field message of a rejected payload.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InvalidInput returns an ErrInvalidInput carrying a client-facing message.
func InvalidInput(message string) error {
	return &inputError{message: message}
}

type inputError struct {
	message string
}

func (e *inputError) Error() string { return e.message }

func (e *inputError) Is(target error) bool { return target == ErrInvalidInput }

// StorageError marks a failure of the underlying record store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }
