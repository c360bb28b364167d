package backend

import "errors"

var (
	// ErrUnavailable covers network and service failures before any
	// server-side mutation; always safe to retry from the caller's side.
	ErrUnavailable = errors.New("booking backend unavailable")

	// ErrInvalidResponse means the backend answered with something this
	// client cannot interpret.
	ErrInvalidResponse = errors.New("invalid backend response")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)
