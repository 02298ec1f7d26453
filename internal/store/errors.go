package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested object or row does not exist.
var ErrNotFound = errors.New("not found")

// InvalidPageTokenError is returned when a page token cannot be decoded.
// Callers map it to a client error, not a server error.
type InvalidPageTokenError struct {
	Token string
	Err   error
}

func (e *InvalidPageTokenError) Error() string {
	return fmt.Sprintf("invalid page token %q: %v", e.Token, e.Err)
}

func (e *InvalidPageTokenError) Unwrap() error {
	return e.Err
}

// IsInvalidPageToken checks if an error is an InvalidPageTokenError.
func IsInvalidPageToken(err error) bool {
	var target *InvalidPageTokenError
	return errors.As(err, &target)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
