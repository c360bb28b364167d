package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"bookflow/internal/checkout"
	"bookflow/internal/domain"
	"bookflow/internal/events"
	"bookflow/internal/gate"
	"bookflow/internal/metrics"
	"bookflow/internal/models"
	"bookflow/internal/resolver"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager creates and resolves session controllers. Live controllers are held
// in memory; the repository snapshot only bridges requests and expires on its
// own TTL. A payment redirect is a hard boundary: the live controller is
// dropped and the return leg reconciles against the backend alone.
type Manager struct {
	mu   sync.Mutex
	live map[string]*Controller

	vertical       models.Vertical
	maxAdvanceDays int

	backend  domain.Backend
	repo     domain.SessionRepository
	gate     *gate.DisclaimerGate
	orch     *checkout.Orchestrator
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewManager(vertical models.Vertical, maxAdvanceDays int, backend domain.Backend, repo domain.SessionRepository, g *gate.DisclaimerGate, orch *checkout.Orchestrator, eventBus domain.EventPublisher, logger *zerolog.Logger) (*Manager, error) {
	if !vertical.Valid() {
		return nil, models.ErrInvalidVertical
	}
	if maxAdvanceDays <= 0 {
		maxAdvanceDays = models.DefaultMaxAdvanceDays
	}

	return &Manager{
		live:           make(map[string]*Controller),
		vertical:       vertical,
		maxAdvanceDays: maxAdvanceDays,
		backend:        backend,
		repo:           repo,
		gate:           g,
		orch:           orch,
		eventBus:       eventBus,
		logger:         logger,
	}, nil
}

// MaxAdvanceDays is the tenant's booking horizon in days.
func (m *Manager) MaxAdvanceDays() int {
	return m.maxAdvanceDays
}

// Start opens a new booking session. The availability strategy is chosen here,
// once, from the tenant's vertical; nothing downstream branches on it again.
func (m *Manager) Start(ctx context.Context, operator bool) (*Controller, error) {
	res, err := resolver.ForVertical(m.vertical, m.backend, m.maxAdvanceDays, m.logger)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.BookingSession{
		ID:        uuid.NewString(),
		Vertical:  m.vertical,
		Operator:  operator,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch m.vertical {
	case models.VerticalServiceAppointment:
		session.State = models.StateSelectingService
	case models.VerticalTableReservation:
		session.State = models.StateSelectingDate
		session.PartySize = models.DefaultPartySize
	case models.VerticalClassSession:
		session.State = models.StateSelectingDate
	}

	ctrl := newController(session, res, m.gate, m.orch, m.eventBus, m.logger)

	m.mu.Lock()
	m.live[session.ID] = ctrl
	metrics.SetActiveSessions(len(m.live))
	m.mu.Unlock()

	if err := m.repo.SaveSession(ctx, session); err != nil {
		m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("session snapshot save failed")
	}

	if m.eventBus != nil {
		_ = m.eventBus.PublishJSON(events.EventSessionStarted, events.SessionEventPayload{
			SessionID: session.ID,
			Vertical:  string(session.Vertical),
			State:     string(session.State),
			Operator:  operator,
		})
	}

	m.logger.Info().Str("session_id", session.ID).Str("vertical", string(m.vertical)).Bool("operator", operator).Msg("session started")
	return ctrl, nil
}

// Get returns the live controller for a session, rehydrating it from the
// snapshot store if this process no longer holds it in memory.
func (m *Manager) Get(ctx context.Context, id string) (*Controller, error) {
	m.mu.Lock()
	if ctrl, ok := m.live[id]; ok {
		m.mu.Unlock()
		return ctrl, nil
	}
	m.mu.Unlock()

	session, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.ErrSessionNotFound
	}

	res, err := resolver.ForVertical(session.Vertical, m.backend, m.maxAdvanceDays, m.logger)
	if err != nil {
		return nil, err
	}
	ctrl := newController(session, res, m.gate, m.orch, m.eventBus, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have rehydrated it in the meantime.
	if existing, ok := m.live[id]; ok {
		return existing, nil
	}
	m.live[id] = ctrl
	metrics.SetActiveSessions(len(m.live))
	return ctrl, nil
}

// Persist snapshots the controller's current session state.
func (m *Manager) Persist(ctx context.Context, ctrl *Controller) {
	session := ctrl.Snapshot()
	if err := m.repo.SaveSession(ctx, &session); err != nil {
		m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("session snapshot save failed")
	}
}

// Detach drops the live controller after a payment redirect. The snapshot
// stays for display; whatever happens next is decided by the backend record,
// not by resumed session state.
func (m *Manager) Detach(ctx context.Context, ctrl *Controller) {
	session := ctrl.Snapshot()
	if err := m.repo.SaveSession(ctx, &session); err != nil {
		m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("session snapshot save failed")
	}

	m.mu.Lock()
	delete(m.live, session.ID)
	metrics.SetActiveSessions(len(m.live))
	m.mu.Unlock()

	m.logger.Info().Str("session_id", session.ID).Msg("session detached for payment redirect")
}

// Remove ends a session and forgets it everywhere.
func (m *Manager) Remove(ctx context.Context, id string) {
	if err := m.repo.ClearSession(ctx, id); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		m.logger.Warn().Err(err).Str("session_id", id).Msg("session snapshot clear failed")
	}

	m.mu.Lock()
	delete(m.live, id)
	metrics.SetActiveSessions(len(m.live))
	m.mu.Unlock()
}

// ExpireIdle drops live controllers whose sessions have been idle longer than
// ttl and reports how many were dropped. The snapshot store evicts on its own
// TTL; this keeps the live map in step and announces the expiry on the bus.
func (m *Manager) ExpireIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var expired []models.BookingSession
	for id, ctrl := range m.live {
		s := ctrl.Snapshot()
		if s.UpdatedAt.After(cutoff) {
			continue
		}
		delete(m.live, id)
		expired = append(expired, s)
	}
	metrics.SetActiveSessions(len(m.live))
	m.mu.Unlock()

	for _, s := range expired {
		if m.eventBus != nil {
			_ = m.eventBus.PublishJSON(events.EventSessionExpired, events.SessionEventPayload{
				SessionID: s.ID,
				Vertical:  string(s.Vertical),
				State:     string(s.State),
				Operator:  s.Operator,
			})
		}
		m.logger.Info().Str("session_id", s.ID).Str("state", string(s.State)).Msg("idle session expired")
	}
	return len(expired)
}

// Reconcile resolves a returning payment redirect by booking ID. It needs no
// live controller: a replayed or late return works the same way.
func (m *Manager) Reconcile(ctx context.Context, outcome models.PaymentOutcome, bookingID int64) (*models.Booking, error) {
	return m.orch.Reconcile(ctx, outcome, bookingID)
}
