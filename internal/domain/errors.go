package domain

import (
	"errors"
	"fmt"
)

// ErrUserNotFound is matched by every not-found error returned by a user store.
var ErrUserNotFound = errors.New("user not found")

// NotFoundError reports an id-based operation on a user that does not exist.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("user with id %d not found", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrUserNotFound
}

// NewNotFoundError returns a NotFoundError for id.
func NewNotFoundError(id int64) error {
	return &NotFoundError{ID: id}
}
