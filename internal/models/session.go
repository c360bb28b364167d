package models

import "time"

// Service is a bookable catalog entry. Prices are integer minor currency
// units. A deposit percentage, when set, takes precedence over a fixed
// deposit amount.
type Service struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceMinor      int64  `json:"price_minor"`
	DepositPercent  int64  `json:"deposit_percent"`
	DepositMinor    int64  `json:"deposit_minor"`
	Active          bool   `json:"active"`
}

// EffectiveDepositMinor returns the amount actually charged up front, or 0
// when the service carries no deposit.
func (s Service) EffectiveDepositMinor() int64 {
	if s.DepositPercent > 0 {
		return s.PriceMinor * s.DepositPercent / 100
	}
	return s.DepositMinor
}

// Provider is a staff member who can deliver a service.
type Provider struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Active bool   `json:"active"`
}

// CustomerContact holds the details entered before submission.
type CustomerContact struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
	Notes string `json:"notes,omitempty"`
}

// DisclaimerRecord is the legal text a customer may need to sign.
type DisclaimerRecord struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	ValidityMonths int    `json:"validity_months"`
}

// DisclaimerSignature is keyed by (disclaimer, email) and stays valid for the
// record's validity period, not for the session that produced it.
type DisclaimerSignature struct {
	DisclaimerID int64     `json:"disclaimer_id"`
	Email        string    `json:"email"`
	SignedAt     time.Time `json:"signed_at"`
}

// ValidAt reports whether the signature is still in force.
func (s DisclaimerSignature) ValidAt(now time.Time, validityMonths int) bool {
	if validityMonths <= 0 {
		validityMonths = DisclaimerValidityMonths
	}
	return now.Before(s.SignedAt.AddDate(0, validityMonths, 0))
}

// PaymentIntentRef tracks a redirect handoff to the payment gateway.
type PaymentIntentRef struct {
	BookingDraftRef int64          `json:"booking_draft_ref"`
	RedirectURL     string         `json:"redirect_url"`
	Outcome         PaymentOutcome `json:"outcome"`
}

// BookingSession is the one mutable value per in-progress booking. It is
// owned exclusively by the session controller and is never persisted durably;
// the snapshot store only bridges HTTP requests and expires on TTL.
type BookingSession struct {
	ID       string   `json:"id"`
	Vertical Vertical `json:"vertical"`

	Service   *Service      `json:"service,omitempty"`
	Provider  *Provider     `json:"provider,omitempty"`
	Date      time.Time     `json:"date,omitempty"`
	Unit      *CapacityUnit `json:"unit,omitempty"`
	PartySize int           `json:"party_size,omitempty"`

	Contact    CustomerContact    `json:"contact"`
	Disclaimer DisclaimerState    `json:"disclaimer"`
	Pending    *DisclaimerRecord  `json:"pending_disclaimer,omitempty"`
	Payment    PaymentRequirement `json:"payment"`
	PaymentRef *PaymentIntentRef  `json:"payment_ref,omitempty"`

	State          FlowState       `json:"state"`
	SelectionEpoch uint64          `json:"selection_epoch"`
	Availability   AvailabilitySet `json:"availability"`
	LastError      string          `json:"last_error,omitempty"`
	Operator       bool            `json:"operator,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDate reports whether a date has been selected.
func (s *BookingSession) HasDate() bool {
	return !s.Date.IsZero()
}

// Query builds the availability query for the current selection.
func (s *BookingSession) Query() AvailabilityQuery {
	q := AvailabilityQuery{Vertical: s.Vertical, Date: s.Date, PartySize: s.PartySize}
	if s.Service != nil {
		q.ServiceID = s.Service.ID
	}
	if s.Provider != nil {
		id := s.Provider.ID
		q.ProviderID = &id
	}
	return q
}

// BookingSnapshot is the immutable view of a session handed to the backend at
// submission. The backend booking record is the durable artifact.
type BookingSnapshot struct {
	SessionID string          `json:"session_id"`
	Vertical  Vertical        `json:"vertical"`
	ServiceID int64           `json:"service_id,omitempty"`
	StaffID   *int64          `json:"staff_id,omitempty"`
	Date      string          `json:"date"`
	StartTime string          `json:"start_time"`
	PartySize int             `json:"party_size,omitempty"`
	Contact   CustomerContact `json:"contact"`
}

// Booking is the backend's durable record, read back during reconciliation.
type Booking struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	ServiceName   string `json:"service_name,omitempty"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
}

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)
