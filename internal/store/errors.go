package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist, or exists but
// falls outside the caller's ownership filter.
var ErrNotFound = errors.New("not found")

// ErrRoleNotFound is returned when a role name is absent from the registry.
var ErrRoleNotFound = errors.New("role not found")

// ErrConflict is returned when a write violates a unique constraint.
var ErrConflict = errors.New("conflict")

const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

// mapWriteError translates driver errors into package sentinels. A write
// that references a missing row (a deleted owner) reads as ErrNotFound.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case uniqueViolation:
		return ErrConflict
	case foreignKeyViolation:
		return ErrNotFound
	}
	return err
}
