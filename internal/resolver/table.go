package resolver

import (
	"context"
	"fmt"

	"bookflow/internal/domain"
	"bookflow/internal/models"

	"github.com/rs/zerolog"
)

// TableReservationResolver fetches seating windows for a date and party size.
// Tables have no provider dimension; the windows come back grouped by named
// service period (lunch, dinner) and that grouping is preserved as-is.
type TableReservationResolver struct {
	backend        domain.Backend
	maxAdvanceDays int
	logger         *zerolog.Logger
}

func (r *TableReservationResolver) Resolve(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error) {
	if query.Date.IsZero() {
		return models.AvailabilitySet{}, fmt.Errorf("%w: date not selected", models.ErrIncompleteSelection)
	}
	if query.PartySize < 1 || query.PartySize > models.MaxPartySize {
		return models.AvailabilitySet{}, fmt.Errorf("%w: party size must be between 1 and %d", models.ErrIncompleteSelection, models.MaxPartySize)
	}
	if err := ValidateDate(query.Date, r.maxAdvanceDays); err != nil {
		return models.AvailabilitySet{}, err
	}

	set, err := r.backend.QueryAvailability(ctx, query)
	if err != nil {
		return models.AvailabilitySet{}, err
	}

	r.logger.Debug().
		Str("date", query.Date.Format("2006-01-02")).
		Int("party_size", query.PartySize).
		Int("windows", len(set.Windows)).
		Msg("table windows resolved")
	return set, nil
}

// AvailableDates returns the calendar days within the horizon that still have
// at least one window seating the requested party size.
func (r *TableReservationResolver) AvailableDates(ctx context.Context, partySize int) ([]string, error) {
	if partySize < 1 || partySize > models.MaxPartySize {
		return nil, fmt.Errorf("%w: party size must be between 1 and %d", models.ErrIncompleteSelection, models.MaxPartySize)
	}
	return r.backend.ListAvailableDates(ctx, partySize, r.maxAdvanceDays)
}
