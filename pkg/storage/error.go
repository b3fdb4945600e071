package storage

import "errors"

// ErrNilRecord is returned by Put for a nil record.
var ErrNilRecord = errors.New("cannot store nil record")

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "record not found"
	}

	return "record not found: " + e.ID
}
