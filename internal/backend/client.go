package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bookflow/internal/models"

	"github.com/rs/zerolog"
)

// Client talks to the booking backend over HTTP JSON. It performs at most one
// silent retry on transport failures; everything past that surfaces as
// ErrUnavailable so a persistent fault is never masked as user error.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryPolicy(),
		logger:     logger,
	}
}

func (c *Client) ListServices(ctx context.Context) ([]models.Service, error) {
	var dtos []serviceDTO
	if err := c.getJSON(ctx, "/api/v1/services", nil, &dtos); err != nil {
		return nil, err
	}

	out := make([]models.Service, 0, len(dtos))
	for _, d := range dtos {
		if !d.Active {
			continue
		}
		out = append(out, d.toModel())
	}
	return out, nil
}

func (c *Client) ListProviders(ctx context.Context, serviceID int64) ([]models.Provider, error) {
	q := url.Values{}
	q.Set("service_id", strconv.FormatInt(serviceID, 10))

	var dtos []providerDTO
	if err := c.getJSON(ctx, "/api/v1/staff-available", q, &dtos); err != nil {
		return nil, err
	}

	out := make([]models.Provider, 0, len(dtos))
	for _, d := range dtos {
		if !d.Active {
			continue
		}
		out = append(out, models.Provider{ID: d.ID, Name: d.Name, Role: d.Role, Active: d.Active})
	}
	return out, nil
}

// QueryAvailability dispatches to the vertical-appropriate endpoint and
// normalizes the response into windows of capacity units. Full units are
// passed through untouched; dropping them is the backend's bug to avoid and
// ours to preserve visibility for.
func (c *Client) QueryAvailability(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error) {
	switch query.Vertical {
	case models.VerticalServiceAppointment:
		return c.staffSlots(ctx, query)
	case models.VerticalTableReservation:
		return c.tableWindows(ctx, query)
	case models.VerticalClassSession:
		return c.classTimetable(ctx, query)
	default:
		return models.AvailabilitySet{}, models.ErrInvalidVertical
	}
}

func (c *Client) staffSlots(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error) {
	q := url.Values{}
	q.Set("service_id", strconv.FormatInt(query.ServiceID, 10))
	q.Set("date", query.Date.Format("2006-01-02"))
	if query.ProviderID != nil {
		q.Set("staff_id", strconv.FormatInt(*query.ProviderID, 10))
	}

	var resp struct {
		Slots []slotDTO `json:"slots"`
	}
	if err := c.getJSON(ctx, "/api/v1/staff-slots", q, &resp); err != nil {
		return models.AvailabilitySet{}, err
	}

	date := query.Date.Format("2006-01-02")
	units := make([]models.CapacityUnit, 0, len(resp.Slots))
	for _, s := range resp.Slots {
		unit, err := slotToUnit(date, s, 0)
		if err != nil {
			return models.AvailabilitySet{}, err
		}
		units = append(units, unit)
	}

	return models.AvailabilitySet{Windows: []models.Window{{Units: units}}}, nil
}

func (c *Client) tableWindows(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error) {
	q := url.Values{}
	q.Set("date", query.Date.Format("2006-01-02"))
	q.Set("party_size", strconv.Itoa(query.PartySize))

	var resp struct {
		Windows []windowDTO `json:"windows"`
	}
	if err := c.getJSON(ctx, "/api/v1/table-availability", q, &resp); err != nil {
		return models.AvailabilitySet{}, err
	}

	date := query.Date.Format("2006-01-02")
	windows := make([]models.Window, 0, len(resp.Windows))
	for _, w := range resp.Windows {
		units := make([]models.CapacityUnit, 0, len(w.Slots))
		for _, s := range w.Slots {
			unit, err := slotToUnit(date, s, 0)
			if err != nil {
				return models.AvailabilitySet{}, err
			}
			units = append(units, unit)
		}
		windows = append(windows, models.Window{
			ID:        w.ID,
			Name:      w.Name,
			OpenTime:  w.OpenTime,
			CloseTime: w.CloseTime,
			Units:     units,
		})
	}

	return models.AvailabilitySet{Windows: windows}, nil
}

func (c *Client) classTimetable(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error) {
	q := url.Values{}
	q.Set("date", query.Date.Format("2006-01-02"))
	if query.DateTo != nil {
		q.Set("date_to", query.DateTo.Format("2006-01-02"))
	}

	var resp struct {
		Sessions []classSessionDTO `json:"sessions"`
	}
	if err := c.getJSON(ctx, "/api/v1/class-timetable", q, &resp); err != nil {
		return models.AvailabilitySet{}, err
	}

	units := make([]models.CapacityUnit, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		start, err := parseClock(s.Date, s.StartTime)
		if err != nil {
			return models.AvailabilitySet{}, err
		}
		end, err := parseClock(s.Date, s.EndTime)
		if err != nil {
			return models.AvailabilitySet{}, err
		}
		price := s.PriceMinor
		units = append(units, models.CapacityUnit{
			StartTime:         start,
			EndTime:           end,
			RemainingCapacity: s.SpotsRemaining,
			PriceMinor:        &price,
			ProviderRef:       s.InstructorID,
		})
	}

	return models.AvailabilitySet{Windows: []models.Window{{Units: units}}}, nil
}

func (c *Client) ListAvailableDates(ctx context.Context, partySize int, daysAhead int) ([]string, error) {
	q := url.Values{}
	q.Set("party_size", strconv.Itoa(partySize))
	q.Set("days_ahead", strconv.Itoa(daysAhead))

	var resp struct {
		Dates []string `json:"dates"`
	}
	if err := c.getJSON(ctx, "/api/v1/table-available-dates", q, &resp); err != nil {
		return nil, err
	}
	return resp.Dates, nil
}

func (c *Client) CheckDisclaimer(ctx context.Context, email string) (*models.DisclaimerRecord, *models.DisclaimerSignature, error) {
	q := url.Values{}
	q.Set("email", email)

	var resp disclaimerCheckDTO
	if err := c.getJSON(ctx, "/api/v1/disclaimer/check", q, &resp); err != nil {
		return nil, nil, err
	}

	if !resp.Required || resp.Disclaimer == nil {
		return nil, nil, nil
	}
	if resp.Valid && resp.SignedAt != nil {
		sig := &models.DisclaimerSignature{
			DisclaimerID: resp.Disclaimer.ID,
			Email:        email,
			SignedAt:     *resp.SignedAt,
		}
		return resp.Disclaimer, sig, nil
	}
	return resp.Disclaimer, nil, nil
}

func (c *Client) SignDisclaimer(ctx context.Context, email string, disclaimerID int64, name string) (*models.DisclaimerSignature, error) {
	body := map[string]interface{}{"email": email, "disclaimer_id": disclaimerID, "name": name}

	var resp disclaimerSignDTO
	if err := c.postJSON(ctx, "/api/v1/disclaimer/sign", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Signed {
		return nil, models.ErrDisclaimerRejected
	}

	return &models.DisclaimerSignature{DisclaimerID: disclaimerID, Email: email, SignedAt: resp.SignedAt}, nil
}

func (c *Client) CreateBooking(ctx context.Context, snapshot models.BookingSnapshot) (*models.Booking, error) {
	var booking models.Booking
	if err := c.postJSON(ctx, "/api/v1/bookings", snapshot, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, snapshot models.BookingSnapshot, amountMinor int64, label string) (*models.PaymentIntentRef, error) {
	body := struct {
		models.BookingSnapshot
		AmountMinor int64  `json:"amount_minor"`
		Label       string `json:"label"`
	}{snapshot, amountMinor, label}

	var resp paymentIntentDTO
	if err := c.postJSON(ctx, "/api/v1/payments/intent", body, &resp); err != nil {
		return nil, err
	}

	return &models.PaymentIntentRef{
		BookingDraftRef: resp.BookingID,
		RedirectURL:     resp.CheckoutURL,
		Outcome:         models.PaymentPending,
	}, nil
}

func (c *Client) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	if err := c.getJSON(ctx, fmt.Sprintf("/api/v1/bookings/%d", id), nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, path, query, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		// Only transport-level failures are retried; a response the backend
		// actually produced is final.
		if !isTransient(err) || attempt >= c.retry.MaxRetries {
			return lastErr
		}

		delay := c.retry.NextDelay(attempt + 1)
		c.logger.Warn().Err(err).Str("path", path).Dur("delay", delay).Msg("backend call failed, retrying once")
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %v", ErrInvalidResponse, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return models.ErrUnitUnavailable
	default:
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrInvalidResponse, err)
	}
	return nil
}

// Conflicts, not-found and malformed bodies came from a live backend;
// retrying those would just repeat the same answer.
func isTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
