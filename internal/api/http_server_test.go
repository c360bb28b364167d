package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookflow/internal/checkout"
	"bookflow/internal/config"
	"bookflow/internal/gate"
	"bookflow/internal/models"
	"bookflow/internal/repository"
	"bookflow/internal/session"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a canned catalog with one free and one priced service, one
// provider and two slots per day, one of them already full.
type fakeBackend struct {
	disclaimer       *models.DisclaimerRecord
	failNextCreate   error
	createdBookings  int
	paymentIntents   int
	reconciliedReads int
}

func (f *fakeBackend) ListServices(ctx context.Context) ([]models.Service, error) {
	return []models.Service{
		{ID: 1, Name: "Consultation", DurationMinutes: 30, PriceMinor: 0, Active: true},
		{ID: 2, Name: "Massage", DurationMinutes: 60, PriceMinor: 5000, DepositPercent: 20, Active: true},
	}, nil
}

func (f *fakeBackend) ListProviders(ctx context.Context, serviceID int64) ([]models.Provider, error) {
	return []models.Provider{{ID: 10, Name: "Kate", Active: true}}, nil
}

func (f *fakeBackend) QueryAvailability(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error) {
	open := time.Date(query.Date.Year(), query.Date.Month(), query.Date.Day(), 10, 0, 0, 0, query.Date.Location())
	return models.AvailabilitySet{Windows: []models.Window{{
		Units: []models.CapacityUnit{
			{StartTime: open, EndTime: open.Add(time.Hour), RemainingCapacity: 1},
			{StartTime: open.Add(time.Hour), EndTime: open.Add(2 * time.Hour), RemainingCapacity: 0},
		},
	}}}, nil
}

func (f *fakeBackend) ListAvailableDates(ctx context.Context, partySize int, daysAhead int) ([]string, error) {
	return []string{"2026-09-05", "2026-09-06"}, nil
}

func (f *fakeBackend) CheckDisclaimer(ctx context.Context, email string) (*models.DisclaimerRecord, *models.DisclaimerSignature, error) {
	return f.disclaimer, nil, nil
}

func (f *fakeBackend) SignDisclaimer(ctx context.Context, email string, disclaimerID int64, name string) (*models.DisclaimerSignature, error) {
	return &models.DisclaimerSignature{DisclaimerID: disclaimerID, Email: email, SignedAt: time.Now()}, nil
}

func (f *fakeBackend) CreateBooking(ctx context.Context, snapshot models.BookingSnapshot) (*models.Booking, error) {
	if f.failNextCreate != nil {
		err := f.failNextCreate
		f.failNextCreate = nil
		return nil, err
	}
	f.createdBookings++
	return &models.Booking{ID: 101, Status: models.BookingStatusConfirmed, Date: snapshot.Date, StartTime: snapshot.StartTime}, nil
}

func (f *fakeBackend) CreatePaymentIntent(ctx context.Context, snapshot models.BookingSnapshot, amountMinor int64, label string) (*models.PaymentIntentRef, error) {
	f.paymentIntents++
	return &models.PaymentIntentRef{BookingDraftRef: 202, RedirectURL: "https://pay.example.com/c/abc", Outcome: models.PaymentPending}, nil
}

func (f *fakeBackend) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	f.reconciliedReads++
	return &models.Booking{ID: id, Status: models.BookingStatusConfirmed, PaymentStatus: "paid"}, nil
}

func newTestServer(t *testing.T, vertical models.Vertical, be *fakeBackend) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	repo := repository.NewMemorySessionRepository(time.Hour)
	g := gate.NewDisclaimerGate(be, 12, &logger)
	orch := checkout.NewOrchestrator(be, &logger)

	manager, err := session.NewManager(vertical, 60, be, repo, g, orch, nil, &logger)
	require.NoError(t, err)

	cfg := config.APIConfig{
		Port: 0,
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "op-key", Name: "front desk", Permissions: []string{permOperator}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
	sessCfg := config.SessionsConfig{TTLSeconds: 1800, RateLimitRequests: 100, RateLimitWindow: 60}
	tenantCfg := config.TenantConfig{Vertical: string(vertical), MaxAdvanceDays: 60, DefaultTarget: "10:30"}

	srv := NewHTTPServer(cfg, sessCfg, tenantCfg, manager, be, repo, &logger)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func futureDate() string {
	return time.Now().AddDate(0, 0, 7).Format("2006-01-02")
}

func TestBookingFlowFreeService(t *testing.T) {
	be := &fakeBackend{}
	ts := newTestServer(t, models.VerticalServiceAppointment, be)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["id"].(string)
	assert.Equal(t, "selecting_service", body["state"])

	base := ts.URL + "/api/v1/sessions/" + sessionID

	resp, body = doJSON(t, http.MethodPost, base+"/service", map[string]any{"service_id": 1}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "selecting_provider", body["state"])

	resp, body = doJSON(t, http.MethodPost, base+"/provider", map[string]any{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "selecting_date", body["state"])

	resp, body = doJSON(t, http.MethodPost, base+"/date", map[string]any{"date": futureDate()}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "selecting_time", body["state"])

	resp, body = doJSON(t, http.MethodGet, base+"/availability", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["windows"])

	resp, body = doJSON(t, http.MethodPost, base+"/time", map[string]any{"start_time": "10:00"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "entering_details", body["state"])

	resp, body = doJSON(t, http.MethodPost, base+"/details", map[string]any{
		"name": "Anna", "email": "anna@example.com", "phone": "+441234567890",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "entering_details", body["state"])

	resp, body = doJSON(t, http.MethodPost, base+"/submit", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", body["state"])
	require.NotNil(t, body["booking"])
	assert.Equal(t, 1, be.createdBookings)
}

func TestBookingFlowPaymentRedirect(t *testing.T) {
	be := &fakeBackend{}
	ts := newTestServer(t, models.VerticalServiceAppointment, be)

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{}, nil)
	sessionID := body["id"].(string)
	base := ts.URL + "/api/v1/sessions/" + sessionID

	doJSON(t, http.MethodPost, base+"/service", map[string]any{"service_id": 2}, nil)
	doJSON(t, http.MethodPost, base+"/provider", map[string]any{"provider_id": 10}, nil)
	doJSON(t, http.MethodPost, base+"/date", map[string]any{"date": futureDate()}, nil)
	doJSON(t, http.MethodGet, base+"/availability", nil, nil)
	doJSON(t, http.MethodPost, base+"/time", map[string]any{"start_time": "10:00"}, nil)
	doJSON(t, http.MethodPost, base+"/details", map[string]any{
		"name": "Anna", "email": "anna@example.com", "phone": "+441234567890",
	}, nil)

	resp, body := doJSON(t, http.MethodPost, base+"/submit", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_payment", body["state"])
	assert.Equal(t, "https://pay.example.com/c/abc", body["redirect_url"])
	assert.Equal(t, 1, be.paymentIntents)
	assert.Equal(t, 0, be.createdBookings)

	t.Run("parked session rejects further mutation", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, base+"/date", map[string]any{"date": futureDate()}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("success entry settles from the backend record", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/entry?payment=success&booking_id=202", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "confirmed", body["status"])
		assert.Equal(t, 0, be.createdBookings)
		assert.Equal(t, 1, be.reconciliedReads)
	})

	t.Run("replayed success entry stays idempotent", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/entry?payment=success&booking_id=202", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "confirmed", body["status"])
		assert.Equal(t, 0, be.createdBookings)
	})

	t.Run("cancelled entry revives the session for a retry", func(t *testing.T) {
		url := fmt.Sprintf("%s/api/v1/entry?payment=cancelled&booking_id=202&session_id=%s", ts.URL, sessionID)
		resp, body := doJSON(t, http.MethodGet, url, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "cancelled", body["status"])

		revived, ok := body["session"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "entering_details", revived["state"])
	})
}

func TestTableReservationFlow(t *testing.T) {
	be := &fakeBackend{}
	ts := newTestServer(t, models.VerticalTableReservation, be)

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{}, nil)
	sessionID := body["id"].(string)
	assert.Equal(t, "selecting_date", body["state"])
	base := ts.URL + "/api/v1/sessions/" + sessionID

	resp, body := doJSON(t, http.MethodPost, base+"/party-size", map[string]any{"party_size": 4}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(4), body["party_size"])

	resp, _ = doJSON(t, http.MethodPost, base+"/party-size", map[string]any{"party_size": 99}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/dates?party_size=4", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["dates"], 2)
}

func TestErrorMapping(t *testing.T) {
	be := &fakeBackend{}
	ts := newTestServer(t, models.VerticalClassSession, be)

	t.Run("unknown session is 404", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/sessions/no-such", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "session_not_found", body["code"])
	})

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{}, nil)
	base := ts.URL + "/api/v1/sessions/" + body["id"].(string)
	doJSON(t, http.MethodPost, base+"/date", map[string]any{"date": futureDate()}, nil)
	doJSON(t, http.MethodGet, base+"/availability", nil, nil)

	t.Run("full slot is an availability conflict", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, base+"/time", map[string]any{"start_time": "11:00"}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "availability_conflict", body["code"])
	})

	t.Run("past date is a validation error", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, base+"/date", map[string]any{"date": "2020-01-01"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation_error", body["code"])
	})

	t.Run("date beyond the horizon is a validation error", func(t *testing.T) {
		tooFar := time.Now().AddDate(0, 0, 120).Format("2006-01-02")
		resp, body := doJSON(t, http.MethodPost, base+"/date", map[string]any{"date": tooFar}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation_error", body["code"])
	})

	t.Run("disclaimer gate blocks submission", func(t *testing.T) {
		be.disclaimer = &models.DisclaimerRecord{ID: 9, Title: "Waiver"}
		defer func() { be.disclaimer = nil }()

		_, created := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{}, nil)
		b := ts.URL + "/api/v1/sessions/" + created["id"].(string)
		doJSON(t, http.MethodPost, b+"/date", map[string]any{"date": futureDate()}, nil)
		doJSON(t, http.MethodGet, b+"/availability", nil, nil)
		doJSON(t, http.MethodPost, b+"/time", map[string]any{"start_time": "10:00"}, nil)

		resp, body := doJSON(t, http.MethodPost, b+"/details", map[string]any{
			"name": "Anna", "email": "anna@example.com", "phone": "+441234567890",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "disclaimer_check", body["state"])

		resp, body = doJSON(t, http.MethodPost, b+"/submit", nil, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "disclaimer_required", body["code"])

		// Signing resumes the halted submission; no second submit call.
		resp, body = doJSON(t, http.MethodPost, b+"/disclaimer", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "confirmed", body["state"])
		require.NotNil(t, body["booking"])
	})
}

func TestOperatorSessions(t *testing.T) {
	be := &fakeBackend{}
	ts := newTestServer(t, models.VerticalServiceAppointment, be)

	t.Run("operator flag without a key is forbidden", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{"operator": true}, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "forbidden", body["code"])
	})

	t.Run("operator key opens an operator session", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{"operator": true},
			map[string]string{"x-api-key": "op-key"})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.NotEmpty(t, body["id"])
	})
}

func TestOperatorDefaultTarget(t *testing.T) {
	be := &fakeBackend{}
	ts := newTestServer(t, models.VerticalClassSession, be)
	opHeaders := map[string]string{"x-api-key": "op-key"}

	_, created := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{"operator": true}, opHeaders)
	base := ts.URL + "/api/v1/sessions/" + created["id"].(string)
	doJSON(t, http.MethodPost, base+"/date", map[string]any{"date": futureDate()}, nil)

	// No near parameter: the configured 10:30 target kicks in and snaps to
	// the only bookable slot at 10:00.
	resp, body := doJSON(t, http.MethodGet, base+"/availability", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	suggested, ok := body["suggested"].(map[string]any)
	require.True(t, ok, "operator availability should carry a suggestion")
	start, err := time.Parse(time.RFC3339, suggested["start_time"].(string))
	require.NoError(t, err)
	assert.Equal(t, 10, start.Hour())
	assert.Equal(t, 0, start.Minute())
}

func TestCustomerHasNoDefaultTarget(t *testing.T) {
	be := &fakeBackend{}
	ts := newTestServer(t, models.VerticalClassSession, be)

	_, created := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{}, nil)
	base := ts.URL + "/api/v1/sessions/" + created["id"].(string)
	doJSON(t, http.MethodPost, base+"/date", map[string]any{"date": futureDate()}, nil)

	resp, body := doJSON(t, http.MethodGet, base+"/availability", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok := body["suggested"]
	assert.False(t, ok, "customer availability should not auto-suggest")
}

func TestCancelSession(t *testing.T) {
	be := &fakeBackend{}
	ts := newTestServer(t, models.VerticalClassSession, be)

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]any{}, nil)
	base := ts.URL + "/api/v1/sessions/" + body["id"].(string)

	resp, body := doJSON(t, http.MethodPost, base+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["state"])

	resp, _ = doJSON(t, http.MethodGet, base, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
