package domain

import (
	"errors"
)

// Failure taxonomy for operations that return errors. The redirect path itself
// reports its outcome as a status, not an error; these sentinels cover the
// calls where the caller branches on the failure kind.
var (
	// ErrNotFound indicates no record exists for the short code.
	ErrNotFound = errors.New("short code not found")

	// ErrUpstreamUnavailable indicates the authoritative store could not be
	// reached. Cache and broker failures are absorbed and never surface as this.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
