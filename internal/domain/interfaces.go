package domain

import (
	"context"
	"time"

	"bookflow/internal/models"
)

// Backend is the external collaborator that owns the catalog, computes real
// availability, records disclaimers and persists bookings. This engine never
// decides whether a slot is free; it only orchestrates the questions.
type Backend interface {
	ListServices(ctx context.Context) ([]models.Service, error)
	ListProviders(ctx context.Context, serviceID int64) ([]models.Provider, error)
	QueryAvailability(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error)
	ListAvailableDates(ctx context.Context, partySize int, daysAhead int) ([]string, error)
	CheckDisclaimer(ctx context.Context, email string) (*models.DisclaimerRecord, *models.DisclaimerSignature, error)
	SignDisclaimer(ctx context.Context, email string, disclaimerID int64, name string) (*models.DisclaimerSignature, error)
	CreateBooking(ctx context.Context, snapshot models.BookingSnapshot) (*models.Booking, error)
	CreatePaymentIntent(ctx context.Context, snapshot models.BookingSnapshot, amountMinor int64, label string) (*models.PaymentIntentRef, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
}

// AvailabilityResolver turns a partial selection into capacity units.
// Implementations are idempotent and side-effect-free.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, query models.AvailabilityQuery) (models.AvailabilitySet, error)
}

// SessionRepository bridges a booking session between HTTP requests. The
// snapshot expires on TTL; it is not durable storage.
type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*models.BookingSession, error)
	SaveSession(ctx context.Context, session *models.BookingSession) error
	ClearSession(ctx context.Context, id string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventPublisher emits session lifecycle events for in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
