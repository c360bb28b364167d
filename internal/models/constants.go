package models

// Vertical identifies the availability semantics of a tenant.
type Vertical string

const (
	VerticalServiceAppointment Vertical = "service_appointment"
	VerticalTableReservation   Vertical = "table_reservation"
	VerticalClassSession       Vertical = "class_session"
)

// Valid reports whether v is one of the supported verticals.
func (v Vertical) Valid() bool {
	switch v {
	case VerticalServiceAppointment, VerticalTableReservation, VerticalClassSession:
		return true
	}
	return false
}

// HasProvider reports whether the vertical has a provider-selection step.
// Table and class bookings have no provider concept.
func (v Vertical) HasProvider() bool {
	return v == VerticalServiceAppointment
}

// FlowState is a step of the booking session state machine.
type FlowState string

const (
	StateSelectingService  FlowState = "selecting_service"
	StateSelectingProvider FlowState = "selecting_provider"
	StateSelectingDate     FlowState = "selecting_date"
	StateSelectingTime     FlowState = "selecting_time"
	StateEnteringDetails   FlowState = "entering_details"
	StateDisclaimerCheck   FlowState = "disclaimer_check"
	StateAwaitingPayment   FlowState = "awaiting_payment"
	StateConfirmed         FlowState = "confirmed"
	StateCancelled         FlowState = "cancelled"
	StateFailed            FlowState = "failed"
)

// Terminal reports whether the session has reached an end state.
func (s FlowState) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled
}

// DisclaimerState tracks the compliance checkpoint for the current session.
type DisclaimerState string

const (
	DisclaimerNotRequired DisclaimerState = "not_required"
	DisclaimerRequired    DisclaimerState = "required"
	DisclaimerSigned      DisclaimerState = "signed"
)

// PaymentRequirement describes what must be paid before confirmation.
type PaymentRequirement string

const (
	PaymentNone      PaymentRequirement = "none"
	PaymentDeposit   PaymentRequirement = "deposit"
	PaymentFullPrice PaymentRequirement = "full_price"
)

// PaymentOutcome is the resolution of a payment redirect.
type PaymentOutcome string

const (
	PaymentPending   PaymentOutcome = "pending"
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentCancelled PaymentOutcome = "cancelled"
)

const (
	// DisclaimerValidityMonths время действия подписи дисклеймера
	DisclaimerValidityMonths = 12

	// DefaultMaxAdvanceDays максимальный горизонт бронирования
	DefaultMaxAdvanceDays = 60

	// DefaultSessionTTL время жизни снапшота сессии в Redis (секунды)
	DefaultSessionTTL = 30 * 60

	// DefaultPartySize размер компании по умолчанию для ресторанов
	DefaultPartySize = 2

	// MaxPartySize максимальный онлайн-размер компании
	MaxPartySize = 8

	// RateLimitRequests количество запросов в окне
	RateLimitRequests = 30

	// RateLimitWindow окно ограничения частоты запросов (секунды)
	RateLimitWindow = 60
)
