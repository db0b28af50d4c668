package social

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrDuplicateUsername  = errors.New("duplicate username")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSelfFollow         = errors.New("self follow")
	ErrAlreadyFollowing   = errors.New("already following")
	ErrEmptyPost          = errors.New("empty post")
	ErrMissingField       = errors.New("missing field")
	ErrStoreFailure       = errors.New("store failure")
)

// storeErr tags a backend error as ErrStoreFailure while keeping the cause.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}
