// Package gate decides whether a customer must sign a liability disclaimer
// before a submission may proceed. The gate itself is stateless; the backend
// owns the signature records and the session remembers what was signed during
// the current attempt.
package gate

import (
	"context"
	"time"

	"bookflow/internal/domain"
	"bookflow/internal/models"

	"github.com/rs/zerolog"
)

// Decision is the gate's verdict for one email address.
type Decision struct {
	State  models.DisclaimerState
	Record *models.DisclaimerRecord
}

type DisclaimerGate struct {
	backend        domain.Backend
	validityMonths int
	logger         *zerolog.Logger
}

func NewDisclaimerGate(backend domain.Backend, validityMonths int, logger *zerolog.Logger) *DisclaimerGate {
	if validityMonths <= 0 {
		validityMonths = models.DisclaimerValidityMonths
	}
	return &DisclaimerGate{backend: backend, validityMonths: validityMonths, logger: logger}
}

// Evaluate asks the backend whether a disclaimer applies to this email and
// whether an existing signature is still inside the validity window. An
// expired signature counts the same as no signature at all.
func (g *DisclaimerGate) Evaluate(ctx context.Context, email string) (Decision, error) {
	record, signature, err := g.backend.CheckDisclaimer(ctx, email)
	if err != nil {
		return Decision{}, err
	}

	if record == nil {
		return Decision{State: models.DisclaimerNotRequired}, nil
	}
	if signature != nil && signature.ValidAt(time.Now(), g.validityMonths) {
		g.logger.Debug().Str("email", email).Int64("disclaimer_id", record.ID).Msg("disclaimer already signed")
		return Decision{State: models.DisclaimerSigned, Record: record}, nil
	}

	g.logger.Debug().Str("email", email).Int64("disclaimer_id", record.ID).Msg("disclaimer signature required")
	return Decision{State: models.DisclaimerRequired, Record: record}, nil
}

// Sign records a fresh signature with the backend.
func (g *DisclaimerGate) Sign(ctx context.Context, email string, disclaimerID int64, name string) (*models.DisclaimerSignature, error) {
	signature, err := g.backend.SignDisclaimer(ctx, email, disclaimerID, name)
	if err != nil {
		return nil, err
	}
	g.logger.Info().Str("email", email).Int64("disclaimer_id", disclaimerID).Msg("disclaimer signed")
	return signature, nil
}
