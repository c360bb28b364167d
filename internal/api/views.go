package api

import (
	"bookflow/internal/models"
)

// SessionView is the client-facing shape of a session. Availability is only
// included while a time is being chosen; terminal sessions render the outcome.
type SessionView struct {
	ID             string                 `json:"id"`
	Vertical       models.Vertical        `json:"vertical"`
	State          models.FlowState       `json:"state"`
	SelectionEpoch uint64                 `json:"selection_epoch"`
	Service        *models.Service        `json:"service,omitempty"`
	Provider       *models.Provider       `json:"provider,omitempty"`
	Date           string                 `json:"date,omitempty"`
	PartySize      int                    `json:"party_size,omitempty"`
	Unit           *models.CapacityUnit   `json:"unit,omitempty"`
	Disclaimer     models.DisclaimerState `json:"disclaimer,omitempty"`
	PendingWaiver  *models.DisclaimerRecord `json:"pending_disclaimer,omitempty"`
	Windows        []models.Window        `json:"windows,omitempty"`
	RedirectURL    string                 `json:"redirect_url,omitempty"`
	LastError      string                 `json:"last_error,omitempty"`
}

func sessionView(s models.BookingSession) SessionView {
	view := SessionView{
		ID:             s.ID,
		Vertical:       s.Vertical,
		State:          s.State,
		SelectionEpoch: s.SelectionEpoch,
		Service:        s.Service,
		Provider:       s.Provider,
		PartySize:      s.PartySize,
		Unit:           s.Unit,
		Disclaimer:     s.Disclaimer,
		PendingWaiver:  s.Pending,
		LastError:      s.LastError,
	}
	if s.HasDate() {
		view.Date = s.Date.Format("2006-01-02")
	}
	if s.State == models.StateSelectingTime {
		view.Windows = s.Availability.Windows
	}
	if s.State == models.StateAwaitingPayment && s.PaymentRef != nil {
		view.RedirectURL = s.PaymentRef.RedirectURL
	}
	return view
}
