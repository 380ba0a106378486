package service

import "errors"

// Error kinds surfaced to the view layer. Auth errors are shown to the
// user as-is; storage failures wrap ErrStorageUnavailable and render
// as a generic failure. Dangling references are not errors at all,
// they render as missing.
var (
	// ErrDuplicateUser is returned by Signup when the normalized
	// username already has a record, stub or not.
	ErrDuplicateUser = errors.New("username already exists")
	// ErrUserNotFound is returned when a username has no record.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidPassword is returned on a password hash mismatch.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrNotLoggedIn is returned by operations that require a session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrNotFound is returned when an owned entity id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTooManyAttempts is returned when login attempts for a
	// username exceed the configured rate.
	ErrTooManyAttempts = errors.New("too many login attempts")
	// ErrStorageUnavailable wraps blob store failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
