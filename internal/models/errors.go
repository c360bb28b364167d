package models

import "errors"

var (
	// ErrPastDate is returned when the selected date is earlier than today.
	ErrPastDate = errors.New("booking date is in the past")

	// ErrDateTooFar is returned for dates beyond the tenant's booking horizon.
	ErrDateTooFar = errors.New("booking date is too far ahead")

	// ErrUnitUnavailable means the selected capacity unit lost a race with
	// another customer between selection and submission. Recoverable: the
	// flow returns to time selection after a fresh availability fetch.
	ErrUnitUnavailable = errors.New("selected time is no longer available")

	// ErrUnitFull is returned on selecting a unit with no remaining capacity.
	ErrUnitFull = errors.New("selected time is fully booked")

	// ErrIncompleteSelection means an operation was invoked before its
	// upstream selections were made.
	ErrIncompleteSelection = errors.New("selection steps incomplete")

	// ErrSessionTerminal means the session already reached a terminal state.
	ErrSessionTerminal = errors.New("session already completed")

	// ErrSubmitInProgress means a submission for this session is still out at
	// the backend. Rejecting the duplicate is what keeps a double-click from
	// creating two bookings.
	ErrSubmitInProgress = errors.New("submission already in progress")

	// ErrSessionNotFound covers unknown and expired session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDisclaimerRejected means the backend refused to record the signature.
	ErrDisclaimerRejected = errors.New("disclaimer signature rejected")

	// ErrDisclaimerRequired means submission was attempted while an unsigned
	// disclaimer blocks it.
	ErrDisclaimerRequired = errors.New("disclaimer signature required")

	// ErrPaymentCancelled means the customer abandoned the payment redirect.
	// Recoverable: the selection survives and submission can be retried.
	ErrPaymentCancelled = errors.New("payment cancelled")

	// ErrInvalidVertical means the tenant is configured with an unknown vertical.
	ErrInvalidVertical = errors.New("unknown business vertical")
)
