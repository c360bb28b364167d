package models

import "time"

// CapacityUnit is the normalized bookable time unit shared by all verticals.
// Units are immutable once returned by a resolver; an availability refresh
// replaces the whole set, it never patches units in place.
type CapacityUnit struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	RemainingCapacity int64     `json:"remaining_capacity"`
	PriceMinor        *int64    `json:"price_minor,omitempty"`
	ProviderRef       *int64    `json:"provider_ref,omitempty"`
}

// IsFull reports whether the unit has no remaining capacity. Full units are
// still listed so callers can render "no room left" instead of nothing.
func (u CapacityUnit) IsFull() bool {
	return u.RemainingCapacity <= 0
}

// Window is a named service window (e.g. "Lunch", "Dinner") holding its own
// capacity units. Service-appointment and class verticals use a single
// anonymous window.
type Window struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	OpenTime  string         `json:"open_time,omitempty"`
	CloseTime string         `json:"close_time,omitempty"`
	Units     []CapacityUnit `json:"units"`
}

// HasCapacity reports whether any unit in the window is bookable.
func (w Window) HasCapacity() bool {
	for _, u := range w.Units {
		if !u.IsFull() {
			return true
		}
	}
	return false
}

// AvailabilitySet is the full resolver response for one query.
type AvailabilitySet struct {
	Windows []Window `json:"windows"`
}

// Units flattens all windows preserving resolver order. Resolver order may
// encode a preference (earliest-first), so it is never re-sorted here.
func (a AvailabilitySet) Units() []CapacityUnit {
	var out []CapacityUnit
	for _, w := range a.Windows {
		out = append(out, w.Units...)
	}
	return out
}

// Empty reports whether the set contains no units at all.
func (a AvailabilitySet) Empty() bool {
	for _, w := range a.Windows {
		if len(w.Units) > 0 {
			return false
		}
	}
	return true
}
