package models

import "time"

// AvailabilityQuery is the subset of session fields that determine which
// capacity units are relevant. Two queries are equal iff all relevant fields
// are equal.
type AvailabilityQuery struct {
	Vertical   Vertical   `json:"vertical"`
	ServiceID  int64      `json:"service_id,omitempty"`
	ProviderID *int64     `json:"provider_id,omitempty"`
	Date       time.Time  `json:"date"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	PartySize  int        `json:"party_size,omitempty"`
}

// Equal compares all availability-relevant fields.
func (q AvailabilityQuery) Equal(other AvailabilityQuery) bool {
	if q.Vertical != other.Vertical || q.ServiceID != other.ServiceID || q.PartySize != other.PartySize {
		return false
	}
	if !sameDay(q.Date, other.Date) {
		return false
	}
	if (q.ProviderID == nil) != (other.ProviderID == nil) {
		return false
	}
	if q.ProviderID != nil && *q.ProviderID != *other.ProviderID {
		return false
	}
	if (q.DateTo == nil) != (other.DateTo == nil) {
		return false
	}
	if q.DateTo != nil && !sameDay(*q.DateTo, *other.DateTo) {
		return false
	}
	return true
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
