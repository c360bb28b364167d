package resolver

import (
	"context"
	"fmt"

	"bookflow/internal/domain"
	"bookflow/internal/models"

	"github.com/rs/zerolog"
)

// ServiceAppointmentResolver fetches bookable slots for a service, optionally
// narrowed to a single member of staff. A nil ProviderID means "anyone", and
// the backend merges slots across the team.
type ServiceAppointmentResolver struct {
	backend        domain.Backend
	maxAdvanceDays int
	logger         *zerolog.Logger
}

func (r *ServiceAppointmentResolver) Resolve(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error) {
	if query.ServiceID == 0 {
		return models.AvailabilitySet{}, fmt.Errorf("%w: service not selected", models.ErrIncompleteSelection)
	}
	if query.Date.IsZero() {
		return models.AvailabilitySet{}, fmt.Errorf("%w: date not selected", models.ErrIncompleteSelection)
	}
	if err := ValidateDate(query.Date, r.maxAdvanceDays); err != nil {
		return models.AvailabilitySet{}, err
	}

	set, err := r.backend.QueryAvailability(ctx, query)
	if err != nil {
		return models.AvailabilitySet{}, err
	}

	r.logger.Debug().
		Int64("service_id", query.ServiceID).
		Str("date", query.Date.Format("2006-01-02")).
		Int("units", len(set.Units())).
		Msg("staff slots resolved")
	return set, nil
}
