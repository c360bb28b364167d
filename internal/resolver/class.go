package resolver

import (
	"context"
	"fmt"
	"time"

	"bookflow/internal/domain"
	"bookflow/internal/models"

	"github.com/rs/zerolog"
)

// ClassSessionResolver fetches the scheduled class timetable. Classes with no
// spots left are kept in the result and marked full so the timetable reads
// the same whether a class has two places or none.
type ClassSessionResolver struct {
	backend        domain.Backend
	maxAdvanceDays int
	logger         *zerolog.Logger
}

func (r *ClassSessionResolver) Resolve(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error) {
	if query.Date.IsZero() {
		return models.AvailabilitySet{}, fmt.Errorf("%w: date not selected", models.ErrIncompleteSelection)
	}
	if err := ValidateDate(query.Date, r.maxAdvanceDays); err != nil {
		return models.AvailabilitySet{}, err
	}

	// Timetables page by week. Without an explicit range the query covers
	// the seven days starting at the selected date.
	if query.DateTo == nil {
		to := query.Date.AddDate(0, 0, 6)
		query.DateTo = &to
	}
	if err := validateWeekEnd(*query.DateTo, query.Date, r.maxAdvanceDays); err != nil {
		return models.AvailabilitySet{}, err
	}

	set, err := r.backend.QueryAvailability(ctx, query)
	if err != nil {
		return models.AvailabilitySet{}, err
	}

	r.logger.Debug().
		Str("date_from", query.Date.Format("2006-01-02")).
		Str("date_to", query.DateTo.Format("2006-01-02")).
		Int("sessions", len(set.Units())).
		Msg("class timetable resolved")
	return set, nil
}

func validateWeekEnd(to, from time.Time, maxAdvanceDays int) error {
	if to.Before(from) {
		return fmt.Errorf("%w: range end precedes start", models.ErrIncompleteSelection)
	}
	today := time.Now().Truncate(24 * time.Hour)
	if to.Truncate(24 * time.Hour).After(today.AddDate(0, 0, maxAdvanceDays)) {
		return models.ErrDateTooFar
	}
	return nil
}
