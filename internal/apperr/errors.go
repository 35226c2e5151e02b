// Package apperr holds the error kinds shared by the scheduling packages.
// Package-level sentinels wrap one of these kinds so transports can map
// errors with errors.Is without knowing every concrete sentinel.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrSlotConflict    = errors.New("slot conflict")
	ErrFeatureDisabled = errors.New("feature disabled")
	ErrInvalidInput    = errors.New("invalid input")
	ErrStorage         = errors.New("storage error")
)

// StorageError wraps a persistence failure with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError unless it is nil, is a StorageError
// already or carries a domain kind (for example a not-found mapped from
// pgx.ErrNoRows).
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || IsDomain(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsDomain reports whether err carries one of the non-storage kinds.
func IsDomain(err error) bool {
	for _, kind := range []error{
		ErrConfiguration, ErrNotFound, ErrInvalidState,
		ErrSlotConflict, ErrFeatureDisabled, ErrInvalidInput,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
