package apperrors

import (
	"errors"
	"time"
)

// Common errors shared across collaborators.
var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTooLarge           = errors.New("file too large")
	ErrRateLimited        = errors.New("rate limited")
	ErrQueueFull          = errors.New("queue full")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotUploaded        = errors.New("file not uploaded")
)

// Account coordinator errors (see accounts/manager.Manager / accounts/store).
var (
	// ErrContested signals a versioned write lost a race against a newer
	// write. Retried internally by the optimistic update engine; never
	// meant to escape the accounts package.
	ErrContested = errors.New("optimistic write contested")

	// ErrUsernameNotAvailable surfaces from setUsername only.
	ErrUsernameNotAvailable = errors.New("username not available")

	// ErrRetryLimitExceeded is raised once the optimistic update engine
	// exhausts its bounded retry budget against ErrContested.
	ErrRetryLimitExceeded = errors.New("optimistic lock retry limit exceeded")

	// ErrInterrupted surfaces from a canceled wait on a tombstone lease.
	ErrInterrupted = errors.New("interrupted while waiting for lease")
)

// NowPtr returns a pointer to the current time.
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
