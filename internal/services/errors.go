package services

import "errors"

var (
	// ErrInvalidInput wraps validation failures; the wrapped text is safe
	// to show to the caller.
	ErrInvalidInput = errors.New("invalid input")

	ErrUserExists         = errors.New("username or email already exists")
	ErrUnknownRole        = errors.New("role not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoFieldsToUpdate   = errors.New("no fields to update")

	// ErrForbidden is returned when a caller acts on another user's account.
	ErrForbidden = errors.New("forbidden")

	// ErrExportDisabled is returned when no object store is configured.
	ErrExportDisabled = errors.New("transcript export is not configured")
)
