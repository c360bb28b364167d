package backend

import (
	"fmt"
	"time"

	"bookflow/internal/models"
)

// Wire shapes for the booking backend's JSON API. Prices travel as integer
// minor-currency units; clock times as "HH:MM"; dates as "YYYY-MM-DD".

type serviceDTO struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceMinor      int64  `json:"price_minor"`
	DepositPercent  int64  `json:"deposit_percentage"`
	DepositMinor    int64  `json:"deposit_minor"`
	Active          bool   `json:"active"`
}

func (d serviceDTO) toModel() models.Service {
	return models.Service{
		ID:              d.ID,
		Name:            d.Name,
		DurationMinutes: d.DurationMinutes,
		PriceMinor:      d.PriceMinor,
		DepositPercent:  d.DepositPercent,
		DepositMinor:    d.DepositMinor,
		Active:          d.Active,
	}
}

type providerDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Active bool   `json:"active"`
}

type slotDTO struct {
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time,omitempty"`
	Remaining  int64  `json:"remaining_capacity"`
	PriceMinor *int64 `json:"price_minor,omitempty"`
	StaffID    *int64 `json:"staff_id,omitempty"`
}

type windowDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OpenTime  string    `json:"open_time"`
	CloseTime string    `json:"close_time"`
	Slots     []slotDTO `json:"slots"`
}

type classSessionDTO struct {
	ID             int64  `json:"id"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	SpotsRemaining int64  `json:"spots_remaining"`
	ClassName      string `json:"class_name"`
	PriceMinor     int64  `json:"price_minor"`
	InstructorID   *int64 `json:"instructor_id,omitempty"`
}

type disclaimerCheckDTO struct {
	Required   bool                     `json:"required"`
	Valid      bool                     `json:"valid"`
	Disclaimer *models.DisclaimerRecord `json:"disclaimer,omitempty"`
	SignedAt   *time.Time               `json:"signed_at,omitempty"`
}

type disclaimerSignDTO struct {
	Signed   bool      `json:"signed"`
	SignedAt time.Time `json:"signed_at"`
}

type paymentIntentDTO struct {
	BookingID   int64  `json:"booking_id"`
	CheckoutURL string `json:"checkout_url"`
}

// parseClock combines a YYYY-MM-DD date string with an HH:MM clock value.
func parseClock(date, clock string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04", fmt.Sprintf("%s %s", date, clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q on %q", ErrInvalidResponse, clock, date)
	}
	return t, nil
}

func slotToUnit(date string, s slotDTO, fallbackDuration int) (models.CapacityUnit, error) {
	start, err := parseClock(date, s.StartTime)
	if err != nil {
		return models.CapacityUnit{}, err
	}

	var end time.Time
	if s.EndTime != "" {
		if end, err = parseClock(date, s.EndTime); err != nil {
			return models.CapacityUnit{}, err
		}
	} else {
		end = start.Add(time.Duration(fallbackDuration) * time.Minute)
	}

	return models.CapacityUnit{
		StartTime:         start,
		EndTime:           end,
		RemainingCapacity: s.Remaining,
		PriceMinor:        s.PriceMinor,
		ProviderRef:       s.StaffID,
	}, nil
}
