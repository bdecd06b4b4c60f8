package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the parent of every "already gone" error. Callers that
	// only care whether something is still available check against it.
	ErrNotFound = errors.New("not found")

	ErrRecordNotFound     = fmt.Errorf("record %w", ErrNotFound)
	ErrTrashEntryNotFound = fmt.Errorf("trash entry %w", ErrNotFound)
	ErrPrincipalNotFound  = fmt.Errorf("principal %w", ErrNotFound)

	// ErrConflict is returned when a conditional write lost a race. The entry
	// is gone (or owned by someone else) either way, so it also matches
	// ErrTrashEntryNotFound and ErrNotFound.
	ErrConflict = fmt.Errorf("lost concurrent update: %w", ErrTrashEntryNotFound)

	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrAlreadyTrashed    = errors.New("entity already trashed")
	ErrPersistence       = errors.New("persistence failure")

	// ErrRecordExists is returned by restore when a different live record
	// already holds the snapshot's id. The trash entry is kept.
	ErrRecordExists = errors.New("a different live record exists")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// Persistence marks err as a transient store failure of op. The whole
// operation can be retried.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}
