// Package api exposes the booking flow over HTTP JSON. The customer surface
// is open and rate limited per client IP; the operator surface requires an
// API key and rides the same state machine with operator privileges.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"bookflow/internal/backend"
	"bookflow/internal/checkout"
	"bookflow/internal/config"
	"bookflow/internal/domain"
	"bookflow/internal/metrics"
	"bookflow/internal/models"
	"bookflow/internal/resolver"
	"bookflow/internal/session"

	"github.com/rs/zerolog"
)

type HTTPServer struct {
	cfg      config.APIConfig
	sessions *session.Manager
	backend  domain.Backend
	repo     domain.SessionRepository
	rlCfg    config.SessionsConfig
	tenant   config.TenantConfig
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, sessCfg config.SessionsConfig, tenant config.TenantConfig, manager *session.Manager, be domain.Backend, repo domain.SessionRepository, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		sessions: manager,
		backend:  be,
		repo:     repo,
		rlCfg:    sessCfg,
		tenant:   tenant,
		logger:   logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()

	// Customer flow.
	mux.HandleFunc("POST /api/v1/sessions", srv.handleStartSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", srv.handleGetSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/service", srv.handleSelectService)
	mux.HandleFunc("POST /api/v1/sessions/{id}/provider", srv.handleSelectProvider)
	mux.HandleFunc("POST /api/v1/sessions/{id}/party-size", srv.handlePartySize)
	mux.HandleFunc("POST /api/v1/sessions/{id}/date", srv.handleSelectDate)
	mux.HandleFunc("GET /api/v1/sessions/{id}/availability", srv.handleAvailability)
	mux.HandleFunc("POST /api/v1/sessions/{id}/time", srv.handleSelectTime)
	mux.HandleFunc("POST /api/v1/sessions/{id}/details", srv.handleDetails)
	mux.HandleFunc("POST /api/v1/sessions/{id}/disclaimer", srv.handleSignDisclaimer)
	mux.HandleFunc("POST /api/v1/sessions/{id}/submit", srv.handleSubmit)
	mux.HandleFunc("POST /api/v1/sessions/{id}/reset", srv.handleReset)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", srv.handleCancel)

	// Catalog reads shared by both surfaces.
	mux.HandleFunc("GET /api/v1/services", srv.handleListServices)
	mux.HandleFunc("GET /api/v1/providers", srv.handleListProviders)
	mux.HandleFunc("GET /api/v1/dates", srv.handleAvailableDates)

	// Return leg of the payment redirect.
	mux.HandleFunc("GET /api/v1/entry", srv.handleEntry)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_create")

	var body struct {
		Operator bool `json:"operator"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if body.Operator && !s.auth.IsOperator(r) {
		writeError(w, http.StatusForbidden, "forbidden", "operator key required")
		return
	}

	if !body.Operator {
		allowed, err := s.repo.CheckRateLimit(r.Context(), clientIP(r), s.rlCfg.RateLimitRequests, time.Duration(s.rlCfg.RateLimitWindow)*time.Second)
		if err == nil && !allowed {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many sessions, slow down")
			return
		}
	}

	ctrl, err := s.sessions.Start(r.Context(), body.Operator)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_get")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handleSelectService(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_select_service")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	var body struct {
		ServiceID int64 `json:"service_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	services, err := s.backend.ListServices(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var selected *models.Service
	for i := range services {
		if services[i].ID == body.ServiceID {
			selected = &services[i]
			break
		}
	}
	if selected == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "unknown service")
		return
	}

	if err := ctrl.SelectService(r.Context(), *selected); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handleSelectProvider(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_select_provider")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	var body struct {
		ProviderID *int64 `json:"provider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	var provider *models.Provider
	if body.ProviderID != nil {
		snap := ctrl.Snapshot()
		if snap.Service == nil {
			writeError(w, http.StatusBadRequest, "validation_error", "select a service first")
			return
		}
		providers, err := s.backend.ListProviders(r.Context(), snap.Service.ID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		for i := range providers {
			if providers[i].ID == *body.ProviderID {
				provider = &providers[i]
				break
			}
		}
		if provider == nil {
			writeError(w, http.StatusBadRequest, "validation_error", "unknown provider")
			return
		}
	}

	if err := ctrl.SelectProvider(r.Context(), provider); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handlePartySize(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_party_size")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	var body struct {
		PartySize int `json:"party_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	if err := ctrl.SetPartySize(r.Context(), body.PartySize); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_select_date")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	var body struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid date format; expected YYYY-MM-DD")
		return
	}
	if err := resolver.ValidateDate(date, s.sessions.MaxAdvanceDays()); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := ctrl.SelectDate(r.Context(), date); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_availability")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	set, err := ctrl.ResolveNow(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := map[string]any{"windows": set.Windows}
	near := r.URL.Query().Get("near")
	if near == "" && ctrl.Snapshot().Operator {
		// Front-desk bookings usually aim at "around now-ish"; the tenant
		// configures that default so operators skip typing it.
		near = s.tenant.DefaultTarget
	}
	if near != "" {
		target, err := parseTargetClock(ctrl.Snapshot().Date, near)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid near format; expected HH:MM")
			return
		}
		if suggested := ctrl.SuggestUnit(target); suggested != nil {
			resp["suggested"] = suggested
		}
	}

	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSelectTime(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_select_time")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	var body struct {
		StartTime string `json:"start_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	start, err := parseTargetClock(ctrl.Snapshot().Date, body.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid start_time format; expected HH:MM")
		return
	}

	if err := ctrl.SelectUnit(r.Context(), start); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_details")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	var contact models.CustomerContact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	if err := ctrl.EnterDetails(r.Context(), contact); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

// handleSignDisclaimer records the signature. A submission halted at the
// disclaimer step resumes automatically, so the response may already be the
// submission outcome.
func (s *HTTPServer) handleSignDisclaimer(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_disclaimer")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	result, err := ctrl.SignDisclaimer(r.Context())
	if err != nil {
		s.sessions.Persist(r.Context(), ctrl)
		s.writeDomainError(w, err)
		return
	}
	if result != nil {
		s.writeSubmitResult(w, r, ctrl, result)
		return
	}
	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_submit")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	result, err := ctrl.Submit(r.Context())
	if err != nil {
		s.sessions.Persist(r.Context(), ctrl)
		s.writeDomainError(w, err)
		return
	}

	s.writeSubmitResult(w, r, ctrl, result)
}

func (s *HTTPServer) writeSubmitResult(w http.ResponseWriter, r *http.Request, ctrl *session.Controller, result *checkout.Result) {
	if result.Payment != nil {
		// The redirect is a hard boundary: the live controller is dropped
		// and the return leg reconciles against the backend record.
		s.sessions.Detach(r.Context(), ctrl)
		writeJSON(w, http.StatusOK, map[string]any{
			"state":        models.StateAwaitingPayment,
			"redirect_url": result.Payment.RedirectURL,
			"booking_id":   result.Payment.BookingDraftRef,
		})
		return
	}

	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   models.StateConfirmed,
		"booking": result.Booking,
	})
}

// handleReset discards every selection and returns the session to its first
// step.
func (s *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_reset")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	if err := ctrl.Reset(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.sessions.Persist(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, sessionView(ctrl.Snapshot()))
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions_cancel")
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	if err := ctrl.Cancel(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.sessions.Remove(r.Context(), ctrl.Snapshot().ID)
	writeJSON(w, http.StatusOK, map[string]string{"state": string(models.StateCancelled)})
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("catalog_services")
	services, err := s.backend.ListServices(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleListProviders(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("catalog_providers")
	serviceID, err := strconv.ParseInt(r.URL.Query().Get("service_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "service_id is required")
		return
	}

	providers, err := s.backend.ListProviders(r.Context(), serviceID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

func (s *HTTPServer) handleAvailableDates(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("catalog_dates")
	partySize := models.DefaultPartySize
	if raw := r.URL.Query().Get("party_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > models.MaxPartySize {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid party_size")
			return
		}
		partySize = n
	}

	dates, err := s.backend.ListAvailableDates(r.Context(), partySize, models.DefaultMaxAdvanceDays)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// handleEntry resolves the return leg of a payment redirect. It works with no
// live session: success is settled from the backend record, so replays and
// late returns are harmless.
func (s *HTTPServer) handleEntry(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("entry")

	payment := r.URL.Query().Get("payment")
	bookingID, err := strconv.ParseInt(r.URL.Query().Get("booking_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "booking_id is required")
		return
	}

	switch payment {
	case "success":
		booking, err := s.sessions.Reconcile(r.Context(), models.PaymentSucceeded, bookingID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "confirmed", "booking": booking})

	case "cancelled":
		if _, err := s.sessions.Reconcile(r.Context(), models.PaymentCancelled, bookingID); err != nil && !errors.Is(err, models.ErrPaymentCancelled) {
			s.writeDomainError(w, err)
			return
		}

		// When the snapshot survived, revive the session so the customer can
		// retry without re-picking everything.
		resp := map[string]any{"status": "cancelled"}
		if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
			if ctrl, err := s.sessions.Get(r.Context(), sessionID); err == nil {
				if err := ctrl.ResumeAfterPaymentCancel(r.Context()); err == nil {
					s.sessions.Persist(r.Context(), ctrl)
					resp["session"] = sessionView(ctrl.Snapshot())
				}
			}
		}
		writeJSON(w, http.StatusOK, resp)

	default:
		writeError(w, http.StatusBadRequest, "validation_error", "payment must be success or cancelled")
	}
}

func (s *HTTPServer) controller(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "session id is required")
		return nil, false
	}

	ctrl, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return nil, false
	}
	return ctrl, true
}

// writeDomainError maps flow errors onto the HTTP surface. Conflicts are
// distinguishable from validation mistakes so the client can refresh instead
// of blaming the customer's input.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, models.ErrUnitUnavailable), errors.Is(err, models.ErrUnitFull):
		writeError(w, http.StatusConflict, "availability_conflict", err.Error())
	case errors.Is(err, models.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, "submit_in_progress", err.Error())
	case errors.Is(err, models.ErrSessionTerminal):
		writeError(w, http.StatusConflict, "session_completed", err.Error())
	case errors.Is(err, models.ErrDisclaimerRequired):
		writeError(w, http.StatusUnprocessableEntity, "disclaimer_required", err.Error())
	case errors.Is(err, models.ErrPaymentCancelled):
		writeError(w, http.StatusConflict, "payment_cancelled", err.Error())
	case errors.Is(err, models.ErrIncompleteSelection),
		errors.Is(err, models.ErrPastDate),
		errors.Is(err, models.ErrDateTooFar),
		errors.Is(err, models.ErrInvalidVertical):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, backend.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", "booking system is temporarily unavailable")
	default:
		s.logger.Error().Err(err).Msg("unhandled API error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func parseTargetClock(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"code": code, "error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
