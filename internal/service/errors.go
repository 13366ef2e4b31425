// Package service implements the knowledge base controller: the single
// entry point for KB lifecycle and ingestion control operations.
package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for controller operations. Check with errors.Is.
var (
	// ErrValidation rejects malformed input before any state changes.
	ErrValidation = errors.New("validation failed")

	// ErrConflict rejects an operation that contradicts current state,
	// e.g. starting ingestion while a job is active or reusing a KB name.
	ErrConflict = errors.New("conflict with current state")

	// ErrNotFound means the referenced knowledge base does not exist.
	ErrNotFound = errors.New("knowledge base not found")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
