package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Parse-time kinds, reported per line and never fatal to a load.
	ErrMalformedRecord = errors.New("malformed record")
	ErrInvalidAge      = errors.New("invalid age")

	// ErrIOUnavailable is reported once per source that cannot be opened.
	ErrIOUnavailable = errors.New("input source unavailable")

	// ErrStaleHandle is returned when a handle outlived a Clear of its registry.
	ErrStaleHandle = errors.New("stale handle")
)
