// Package session owns the booking flow state machine. One controller guards
// one in-progress booking; every mutation happens under its lock, and every
// selection change advances the selection epoch so that availability answers
// for an abandoned selection can never leak into the current one.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bookflow/internal/checkout"
	"bookflow/internal/domain"
	"bookflow/internal/events"
	"bookflow/internal/gate"
	"bookflow/internal/metrics"
	"bookflow/internal/models"
	"bookflow/internal/resolver"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const resolveTimeout = 10 * time.Second

type Controller struct {
	mu sync.Mutex

	// submitting is set while a submission is out at the backend. guardMutable
	// rejects every mutation until it clears, so the session cannot change
	// under an in-flight submit and a duplicate submit cannot double-book.
	submitting bool

	session  *models.BookingSession
	resolver domain.AvailabilityResolver
	gate     *gate.DisclaimerGate
	orch     *checkout.Orchestrator
	eventBus domain.EventPublisher
	validate *validator.Validate
	logger   *zerolog.Logger
}

func newController(session *models.BookingSession, res domain.AvailabilityResolver, g *gate.DisclaimerGate, orch *checkout.Orchestrator, eventBus domain.EventPublisher, logger *zerolog.Logger) *Controller {
	return &Controller{
		session:  session,
		resolver: res,
		gate:     g,
		orch:     orch,
		eventBus: eventBus,
		validate: validator.New(),
		logger:   logger,
	}
}

// Snapshot returns a copy of the session for rendering and persistence.
func (c *Controller) Snapshot() models.BookingSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.session
}

// SelectService picks a catalog service. Everything downstream of the service
// is cleared unconditionally, even when re-selecting the same service.
func (c *Controller) SelectService(ctx context.Context, service models.Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardMutable(); err != nil {
		return err
	}
	if c.session.Vertical != models.VerticalServiceAppointment {
		return fmt.Errorf("%w: vertical has no service selection", models.ErrIncompleteSelection)
	}

	c.session.Service = &service
	c.session.Provider = nil
	c.clearDateAndBelow()
	c.advanceEpoch("service selected")

	c.session.State = models.StateSelectingProvider
	return nil
}

// SelectProvider narrows availability to one member of staff. A nil provider
// means "anyone". The date and time below it are cleared either way.
func (c *Controller) SelectProvider(ctx context.Context, provider *models.Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardMutable(); err != nil {
		return err
	}
	if c.session.Service == nil {
		return fmt.Errorf("%w: select a service first", models.ErrIncompleteSelection)
	}

	c.session.Provider = provider
	c.clearDateAndBelow()
	c.advanceEpoch("provider selected")

	c.session.State = models.StateSelectingDate
	return nil
}

// SetPartySize changes the party size for a table reservation. It sits
// upstream of the date, so date and time are cleared.
func (c *Controller) SetPartySize(ctx context.Context, size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardMutable(); err != nil {
		return err
	}
	if c.session.Vertical != models.VerticalTableReservation {
		return fmt.Errorf("%w: vertical has no party size", models.ErrIncompleteSelection)
	}
	if size < 1 || size > models.MaxPartySize {
		return fmt.Errorf("%w: party size must be between 1 and %d", models.ErrIncompleteSelection, models.MaxPartySize)
	}

	c.session.PartySize = size
	c.clearDateAndBelow()
	c.advanceEpoch("party size changed")

	c.session.State = models.StateSelectingDate
	return nil
}

// SelectDate picks the calendar day and kicks off an availability fetch for
// the new selection. The time below it is cleared.
func (c *Controller) SelectDate(ctx context.Context, date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardMutable(); err != nil {
		return err
	}
	if c.session.Vertical == models.VerticalServiceAppointment && c.session.Service == nil {
		return fmt.Errorf("%w: select a service first", models.ErrIncompleteSelection)
	}

	c.session.Date = date
	c.session.Unit = nil
	c.session.Availability = models.AvailabilitySet{}
	c.advanceEpoch("date selected")

	c.session.State = models.StateSelectingTime

	epoch := c.session.SelectionEpoch
	query := c.session.Query()
	go c.resolveAsync(epoch, query)
	return nil
}

// resolveAsync fetches availability outside the lock and applies the answer
// only if the selection has not moved on since dispatch.
func (c *Controller) resolveAsync(epoch uint64, query models.AvailabilityQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	set, err := c.resolver.Resolve(ctx, query)
	c.ApplyAvailability(epoch, set, err)
}

// ResolveNow fetches availability synchronously for the current selection.
// The result still goes through the epoch gate, so a concurrent selection
// change wins over the answer.
func (c *Controller) ResolveNow(ctx context.Context) (models.AvailabilitySet, error) {
	c.mu.Lock()
	if err := c.guardMutable(); err != nil {
		c.mu.Unlock()
		return models.AvailabilitySet{}, err
	}
	if !c.session.HasDate() {
		c.mu.Unlock()
		return models.AvailabilitySet{}, fmt.Errorf("%w: select a date first", models.ErrIncompleteSelection)
	}
	epoch := c.session.SelectionEpoch
	query := c.session.Query()
	c.mu.Unlock()

	set, err := c.resolver.Resolve(ctx, query)
	if err != nil {
		c.ApplyAvailability(epoch, models.AvailabilitySet{}, err)
		return models.AvailabilitySet{}, err
	}
	c.ApplyAvailability(epoch, set, nil)
	return set, nil
}

// ApplyAvailability installs a resolved availability set, or discards it when
// the stamped epoch no longer matches the session's. Returns false on discard.
func (c *Controller) ApplyAvailability(epoch uint64, set models.AvailabilitySet, resolveErr error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.session.SelectionEpoch {
		metrics.IncStaleDiscard()
		c.logger.Debug().
			Str("session_id", c.session.ID).
			Uint64("stamped", epoch).
			Uint64("current", c.session.SelectionEpoch).
			Msg("stale availability discarded")
		return false
	}

	if resolveErr != nil {
		metrics.IncAvailability(string(c.session.Vertical), "error")
		c.session.LastError = resolveErr.Error()
		c.logger.Warn().Err(resolveErr).Str("session_id", c.session.ID).Msg("availability resolution failed")
		return true
	}

	metrics.IncAvailability(string(c.session.Vertical), "ok")
	c.session.Availability = set
	c.session.LastError = ""
	c.session.UpdatedAt = time.Now()
	return true
}

// SelectUnit picks a concrete time from the current availability set. The
// unit must exist in the set and must have capacity left.
func (c *Controller) SelectUnit(ctx context.Context, start time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardMutable(); err != nil {
		return err
	}
	if !c.session.HasDate() {
		return fmt.Errorf("%w: select a date first", models.ErrIncompleteSelection)
	}

	var found *models.CapacityUnit
	for _, u := range c.session.Availability.Units() {
		if u.StartTime.Equal(start) {
			unit := u
			found = &unit
			break
		}
	}
	if found == nil {
		return models.ErrUnitUnavailable
	}
	if found.IsFull() {
		return models.ErrUnitFull
	}

	c.session.Unit = found
	c.advanceEpoch("time selected")

	c.session.State = models.StateEnteringDetails
	return nil
}

// SuggestUnit returns the bookable unit closest to the target time, or nil
// when nothing is bookable.
func (c *Controller) SuggestUnit(target time.Time) *models.CapacityUnit {
	c.mu.Lock()
	defer c.mu.Unlock()

	units := c.session.Availability.Units()
	i := resolver.Closest(units, target)
	if i < 0 {
		return nil
	}
	unit := units[i]
	return &unit
}

// EnterDetails records the customer contact and runs the disclaimer check.
// When a signature is required the flow parks at the disclaimer step.
func (c *Controller) EnterDetails(ctx context.Context, contact models.CustomerContact) error {
	c.mu.Lock()
	if err := c.guardMutable(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.session.Unit == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: select a time first", models.ErrIncompleteSelection)
	}
	if err := c.validate.Struct(contact); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", models.ErrIncompleteSelection, err)
	}

	emailChanged := c.session.Contact.Email != contact.Email
	c.session.Contact = contact
	disc := c.session.Disclaimer
	c.mu.Unlock()

	// The signature memo belongs to the email, not the session. Re-check
	// when the address changes or nothing was checked yet.
	if disc == "" || emailChanged || disc == models.DisclaimerRequired {
		decision, err := c.gate.Evaluate(ctx, contact.Email)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.session.Disclaimer = decision.State
		c.session.Pending = decision.Record
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Disclaimer == models.DisclaimerRequired {
		c.session.State = models.StateDisclaimerCheck
	} else {
		c.session.State = models.StateEnteringDetails
	}
	c.session.UpdatedAt = time.Now()
	return nil
}

// SignDisclaimer records the signature for the pending disclaimer. The memo
// lasts for this session only; a new session for the same email asks the
// backend again. A submission halted at the disclaimer step resumes here
// without the caller re-invoking Submit; the result is nil when nothing was
// waiting to be submitted.
func (c *Controller) SignDisclaimer(ctx context.Context) (*checkout.Result, error) {
	c.mu.Lock()
	if err := c.guardMutable(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.session.Pending == nil || c.session.Disclaimer != models.DisclaimerRequired {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: nothing pending", models.ErrDisclaimerRejected)
	}
	email := c.session.Contact.Email
	name := c.session.Contact.Name
	disclaimerID := c.session.Pending.ID
	halted := c.session.State == models.StateDisclaimerCheck && c.session.Unit != nil
	c.mu.Unlock()

	if _, err := c.gate.Sign(ctx, email, disclaimerID, name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.session.Disclaimer = models.DisclaimerSigned
	c.session.Pending = nil
	c.session.State = models.StateEnteringDetails
	c.session.UpdatedAt = time.Now()
	c.mu.Unlock()

	if !halted {
		return nil, nil
	}
	return c.Submit(ctx)
}

// Reset discards every selection and returns the session to its first step.
// It counts as a selection change, so in-flight availability answers for the
// abandoned selection are discarded.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardMutable(); err != nil {
		return err
	}

	c.session.Service = nil
	c.session.Provider = nil
	c.clearDateAndBelow()
	c.session.Contact = models.CustomerContact{}
	c.session.Disclaimer = ""
	c.session.Pending = nil
	c.session.Payment = ""
	c.session.PaymentRef = nil
	c.advanceEpoch("session reset")

	switch c.session.Vertical {
	case models.VerticalServiceAppointment:
		c.session.State = models.StateSelectingService
	case models.VerticalTableReservation:
		c.session.PartySize = models.DefaultPartySize
		c.session.State = models.StateSelectingDate
	default:
		c.session.State = models.StateSelectingDate
	}
	return nil
}

// Submit finalizes the booking. Free bookings confirm immediately; priced
// ones park the session awaiting the payment redirect. A lost slot race
// drops the stale unit and sends the flow back to time selection.
func (c *Controller) Submit(ctx context.Context) (*checkout.Result, error) {
	c.mu.Lock()
	if err := c.guardMutable(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.session.Unit == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: select a time first", models.ErrIncompleteSelection)
	}
	if c.session.Contact.Email == "" {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: enter contact details first", models.ErrIncompleteSelection)
	}
	if c.session.Disclaimer == models.DisclaimerRequired {
		c.mu.Unlock()
		return nil, models.ErrDisclaimerRequired
	}
	c.submitting = true
	sessionCopy := *c.session
	c.mu.Unlock()

	result, err := c.orch.Submit(ctx, &sessionCopy)
	if err != nil {
		return nil, c.submitFailed(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if result.Booking != nil {
		c.session.State = models.StateConfirmed
		c.session.UpdatedAt = time.Now()
		metrics.IncSubmission("free", "confirmed")
		c.publish(events.EventBookingConfirmed, result.Booking.ID, "")
		return &result, nil
	}

	c.session.PaymentRef = result.Payment
	c.session.Payment = checkout.QuoteFor(c.session).Requirement
	c.session.State = models.StateAwaitingPayment
	c.session.UpdatedAt = time.Now()
	metrics.IncSubmission("paid", "redirected")
	c.publish(events.EventPaymentRedirect, result.Payment.BookingDraftRef, "")
	return &result, nil
}

// submitFailed classifies a submission error. An availability conflict is
// recoverable: the unit is dropped, availability refreshed, and the flow
// returns to time selection. Anything else keeps the session where it was.
func (c *Controller) submitFailed(err error) error {
	c.mu.Lock()
	c.submitting = false

	if errors.Is(err, models.ErrUnitUnavailable) {
		metrics.IncSubmission("any", "conflict")
		c.session.State = models.StateFailed
		c.session.LastError = err.Error()
		c.session.Unit = nil
		c.advanceEpoch("slot lost at submission")
		c.session.State = models.StateSelectingTime

		epoch := c.session.SelectionEpoch
		query := c.session.Query()
		c.publish(events.EventSubmissionFailed, 0, err.Error())
		c.mu.Unlock()

		go c.resolveAsync(epoch, query)
		return err
	}

	metrics.IncSubmission("any", "error")
	c.session.LastError = err.Error()
	c.session.UpdatedAt = time.Now()
	c.publish(events.EventSubmissionFailed, 0, err.Error())
	c.mu.Unlock()
	return err
}

// ResumeAfterPaymentCancel returns a parked session to the details step after
// the customer abandoned the payment redirect. The selection survives; only
// the payment handoff is discarded.
func (c *Controller) ResumeAfterPaymentCancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State != models.StateAwaitingPayment {
		return fmt.Errorf("%w: no payment pending", models.ErrSessionTerminal)
	}

	c.session.PaymentRef = nil
	c.session.State = models.StateEnteringDetails
	c.session.LastError = models.ErrPaymentCancelled.Error()
	c.session.UpdatedAt = time.Now()
	c.publish(events.EventPaymentCancelled, 0, models.ErrPaymentCancelled.Error())
	return nil
}

// Cancel ends the session. It waits its turn behind an in-flight submission
// like every other mutation.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitting {
		return models.ErrSubmitInProgress
	}
	if c.session.State.Terminal() {
		return models.ErrSessionTerminal
	}

	c.session.State = models.StateCancelled
	c.session.UpdatedAt = time.Now()
	c.publish(events.EventSessionCancelled, 0, "")
	return nil
}

func (c *Controller) guardMutable() error {
	if c.submitting {
		return models.ErrSubmitInProgress
	}
	if c.session.State.Terminal() {
		return models.ErrSessionTerminal
	}
	if c.session.State == models.StateAwaitingPayment {
		return fmt.Errorf("%w: awaiting payment", models.ErrSessionTerminal)
	}
	return nil
}

// clearDateAndBelow wipes date, time and the availability they were resolved
// for. Clearing is total: it does not matter whether the new upstream value
// would have produced the same result.
func (c *Controller) clearDateAndBelow() {
	c.session.Date = time.Time{}
	c.session.Unit = nil
	c.session.Availability = models.AvailabilitySet{}
}

func (c *Controller) advanceEpoch(reason string) {
	c.session.SelectionEpoch++
	c.session.LastError = ""
	c.session.UpdatedAt = time.Now()
	c.logger.Debug().
		Str("session_id", c.session.ID).
		Uint64("epoch", c.session.SelectionEpoch).
		Str("reason", reason).
		Msg("selection epoch advanced")
}

// publish is called with c.mu held.
func (c *Controller) publish(eventType string, bookingID int64, reason string) {
	if c.eventBus == nil {
		return
	}

	payload := events.SessionEventPayload{
		SessionID: c.session.ID,
		Vertical:  string(c.session.Vertical),
		State:     string(c.session.State),
		BookingID: bookingID,
		Operator:  c.session.Operator,
		Reason:    reason,
	}
	if c.session.Service != nil {
		payload.ServiceID = c.session.Service.ID
		payload.ServiceName = c.session.Service.Name
	}
	if c.session.HasDate() {
		payload.Date = c.session.Date.Format("2006-01-02")
	}
	if c.session.Unit != nil {
		payload.StartTime = c.session.Unit.StartTime.Format("15:04")
	}

	if err := c.eventBus.PublishJSON(eventType, payload); err != nil {
		c.logger.Error().Err(err).Str("event_type", eventType).Str("session_id", c.session.ID).Msg("publish event error")
	}
}
