package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrConflict             = errors.New("profile modified concurrently")
	ErrStoreUnavailable     = errors.New("profile store unavailable")
	ErrInvalidExecContext   = errors.New("invalid executor context")
)
