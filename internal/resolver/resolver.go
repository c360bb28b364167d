// Package resolver selects and runs the availability strategy for a business
// vertical. Each vertical validates its own required selections and shapes the
// backend query; the choice of strategy happens once, when a session starts.
package resolver

import (
	"time"

	"bookflow/internal/domain"
	"bookflow/internal/models"

	"github.com/rs/zerolog"
)

// ForVertical returns the resolver for the tenant's configured vertical.
func ForVertical(v models.Vertical, backend domain.Backend, maxAdvanceDays int, logger *zerolog.Logger) (domain.AvailabilityResolver, error) {
	switch v {
	case models.VerticalServiceAppointment:
		return &ServiceAppointmentResolver{backend: backend, maxAdvanceDays: maxAdvanceDays, logger: logger}, nil
	case models.VerticalTableReservation:
		return &TableReservationResolver{backend: backend, maxAdvanceDays: maxAdvanceDays, logger: logger}, nil
	case models.VerticalClassSession:
		return &ClassSessionResolver{backend: backend, maxAdvanceDays: maxAdvanceDays, logger: logger}, nil
	default:
		return nil, models.ErrInvalidVertical
	}
}

// ValidateDate enforces the shared booking horizon: not in the past, not
// beyond maxAdvanceDays from today. Comparison is by calendar day, taking the
// date's components in its own zone, so an early-morning instant east of UTC
// still counts as today.
func ValidateDate(date time.Time, maxAdvanceDays int) error {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if day.Before(today) {
		return models.ErrPastDate
	}
	if day.After(today.AddDate(0, 0, maxAdvanceDays)) {
		return models.ErrDateTooFar
	}
	return nil
}
