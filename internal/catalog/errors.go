package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("catalog storage failure")
	// ErrUnknownField is returned for fields outside the enumerated set.
	ErrUnknownField = errors.New("unknown film field")
	// ErrInvalidValue matches every *ValidationError.
	ErrInvalidValue = errors.New("invalid value")
)

// StorageError wraps a database fault with the store operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("catalog %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any storage failure.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Code is reported as err_code in handler logs.
func (e *StorageError) Code() string { return "CATALOG_STORAGE" }

// ValidationError describes user input that breaks a field rule.
// Its message is safe to show to the user.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Is lets errors.Is(err, ErrInvalidValue) match any validation failure.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidValue }

// Code is reported as err_code in handler logs.
func (e *ValidationError) Code() string { return "INVALID_" + string(e.Field) }

func invalid(f Field, format string, args ...any) error {
	return &ValidationError{Field: f, Reason: fmt.Sprintf(format, args...)}
}
