// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a status precondition no longer holds
	// (copy already taken, reservation resolved, loan returned).
	ErrConflict = errors.New("conflict")

	// ErrNoCopyAvailable indicates no available copy survived the locking read.
	ErrNoCopyAvailable = errors.New("no copies available")

	// ErrAlreadyExtended indicates the single allowed reservation extension was used.
	ErrAlreadyExtended = errors.New("already extended")

	// ErrPermissionDenied indicates the session lacks the required permission key.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotOwner indicates the reservation belongs to another reader.
	ErrNotOwner = errors.New("not owner")

	// ErrUnauthorized indicates failed authentication (bad login or password).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAccountDisabled indicates the user account is deactivated.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., login taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrLockTimeout indicates the store's lock-wait bound expired; the
	// whole operation may be retried by the caller.
	ErrLockTimeout = errors.New("lock timeout")
)
