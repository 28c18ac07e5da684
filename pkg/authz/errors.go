package authz

import (
	"errors"
	"fmt"
)

// ErrIndeterminate marks a decision that could not be made because a
// collaborator failed. It is never a policy denial.
var ErrIndeterminate = errors.New("authorization indeterminate")

// StorageError names the lookup or write that failed while deciding
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("authz: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrIndeterminate
func (e *StorageError) Is(target error) bool {
	return target == ErrIndeterminate
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
