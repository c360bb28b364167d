// Package checkout turns a completed selection into a durable booking. Free
// bookings are created directly; priced ones go through a payment redirect
// and are reconciled when the customer returns from the gateway.
package checkout

import (
	"context"
	"fmt"

	"bookflow/internal/domain"
	"bookflow/internal/models"

	"github.com/rs/zerolog"
)

// Quote is the pricing decision for one submission.
type Quote struct {
	Requirement models.PaymentRequirement
	AmountMinor int64
	Label       string
}

// Result is the outcome of a submission: exactly one of Booking or Payment
// is set. A Booking means the flow is done; a Payment means the customer
// must complete the redirect.
type Result struct {
	Booking *models.Booking
	Payment *models.PaymentIntentRef
}

type Orchestrator struct {
	backend domain.Backend
	logger  *zerolog.Logger
}

func NewOrchestrator(backend domain.Backend, logger *zerolog.Logger) *Orchestrator {
	return &Orchestrator{backend: backend, logger: logger}
}

// QuoteFor computes what must be paid for the session's current selection.
// The unit price, when the backend supplied one, overrides the catalog price.
// A deposit smaller than the full price is charged as a deposit; otherwise
// the whole amount is due up front.
func QuoteFor(session *models.BookingSession) Quote {
	var price int64
	if session.Unit != nil && session.Unit.PriceMinor != nil {
		price = *session.Unit.PriceMinor
	} else if session.Service != nil {
		price = session.Service.PriceMinor
	}

	if price <= 0 {
		return Quote{Requirement: models.PaymentNone}
	}

	var deposit int64
	if session.Service != nil {
		deposit = session.Service.EffectiveDepositMinor()
	}
	if deposit > 0 && deposit < price {
		return Quote{Requirement: models.PaymentDeposit, AmountMinor: deposit, Label: "Deposit"}
	}
	return Quote{Requirement: models.PaymentFullPrice, AmountMinor: price, Label: "Full payment"}
}

// Submit finalizes the session. The caller has already verified the selection
// is complete, the contact valid and the disclaimer satisfied.
func (o *Orchestrator) Submit(ctx context.Context, session *models.BookingSession) (Result, error) {
	snapshot := Snapshot(session)
	quote := QuoteFor(session)

	if quote.Requirement == models.PaymentNone {
		booking, err := o.backend.CreateBooking(ctx, snapshot)
		if err != nil {
			return Result{}, err
		}
		o.logger.Info().
			Str("session_id", session.ID).
			Int64("booking_id", booking.ID).
			Msg("booking created without payment")
		return Result{Booking: booking}, nil
	}

	intent, err := o.backend.CreatePaymentIntent(ctx, snapshot, quote.AmountMinor, quote.Label)
	if err != nil {
		return Result{}, err
	}
	o.logger.Info().
		Str("session_id", session.ID).
		Int64("booking_draft", intent.BookingDraftRef).
		Int64("amount_minor", quote.AmountMinor).
		Str("label", quote.Label).
		Msg("payment redirect issued")
	return Result{Payment: intent}, nil
}

// Reconcile resolves a returning payment redirect. On success it reads the
// booking the gateway already settled; it never creates a second one, so a
// replayed success URL is harmless. The backend record is authoritative over
// whatever the return URL claims.
func (o *Orchestrator) Reconcile(ctx context.Context, outcome models.PaymentOutcome, bookingID int64) (*models.Booking, error) {
	switch outcome {
	case models.PaymentSucceeded:
		booking, err := o.backend.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		switch booking.Status {
		case models.BookingStatusCancelled:
			// The gateway sent the customer back as paid but the record says
			// otherwise. The record wins.
			o.logger.Warn().Int64("booking_id", bookingID).Msg("success return for a cancelled booking")
			return nil, models.ErrPaymentCancelled
		case models.BookingStatusPending:
			o.logger.Warn().Int64("booking_id", bookingID).Msg("booking not settled yet on return")
		}
		o.logger.Info().Int64("booking_id", bookingID).Msg("payment reconciled")
		return booking, nil
	case models.PaymentCancelled:
		o.logger.Info().Int64("booking_id", bookingID).Msg("payment cancelled by customer")
		return nil, models.ErrPaymentCancelled
	default:
		return nil, fmt.Errorf("unexpected payment outcome %q", outcome)
	}
}

// Snapshot freezes the session's selection for the backend.
func Snapshot(session *models.BookingSession) models.BookingSnapshot {
	snapshot := models.BookingSnapshot{
		SessionID: session.ID,
		Vertical:  session.Vertical,
		Date:      session.Date.Format("2006-01-02"),
		PartySize: session.PartySize,
		Contact:   session.Contact,
	}
	if session.Service != nil {
		snapshot.ServiceID = session.Service.ID
	}
	if session.Provider != nil {
		id := session.Provider.ID
		snapshot.StaffID = &id
	}
	if session.Unit != nil {
		snapshot.StartTime = session.Unit.StartTime.Format("15:04")
	}
	if session.Operator {
		if snapshot.Contact.Notes != "" {
			snapshot.Contact.Notes = "[Admin booking] " + snapshot.Contact.Notes
		} else {
			snapshot.Contact.Notes = "[Admin booking]"
		}
	}
	return snapshot
}
