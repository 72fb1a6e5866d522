package storage

import "errors"

// Storage errors shared by all tiers.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTierUnavailable is returned by the tiered store when neither the cache
	// nor the durable tier could serve a request.
	ErrTierUnavailable = errors.New("storage tier unavailable")
)
