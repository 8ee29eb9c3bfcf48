package lifecycle

import "errors"

var (
	// ErrCollectionNotFound means no collection has the requested name.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrRecordNotFound means the collection has no active record with the id.
	// Soft-deleted records report it too, except to Restore.
	ErrRecordNotFound = errors.New("record not found")

	// ErrValidation means a create or amend payload was rejected.
	ErrValidation = errors.New("validation failed")

	// ErrNotDeleted means Restore was asked to restore an active record.
	ErrNotDeleted = errors.New("record is not deleted")
)

// ValidationError describes a rejected payload. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
