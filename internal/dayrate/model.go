// Package dayrate allocates day-rate chairs at a location: a pool of
// interchangeable units, one renter per unit per day.
package dayrate

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

var (
	// ErrCapacityExhausted means every active unit is taken for the date.
	ErrCapacityExhausted = errors.New("dayrate: no units available")
	// ErrNotOffered means the location does not take day-rate bookings.
	ErrNotOffered = errors.New("dayrate: day-rate booking not offered at this location")
	// ErrDateUnavailable means the date is past or blacked out.
	ErrDateUnavailable = errors.New("dayrate: date not available")
	// ErrInvalidRange rejects reversed or oversized date ranges.
	ErrInvalidRange = errors.New("dayrate: invalid date range")
	// ErrInvalidRequest marks missing booking or blackout fields.
	ErrInvalidRequest = errors.New("dayrate: invalid request")
)

// Reasons reported by CheckDate.
const (
	ReasonPast        = "past"
	ReasonBlackout    = "blackout"
	ReasonFullyBooked = "fully_booked"
	ReasonNotOffered  = "not_offered"
)

// Location is a site that may rent chairs by the day.
type Location struct {
	ID             uuid.UUID `json:"id"`
	OrgID          string    `json:"org_id"`
	Name           string    `json:"name"`
	DayRateEnabled bool      `json:"day_rate_enabled"`
	PriceCents     int       `json:"price_cents"`
	Timezone       string    `json:"timezone,omitempty"`
}

// Zone resolves the location's timezone, defaulting to UTC.
func (l Location) Zone() *time.Location {
	if l.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Unit is one bookable chair or seat.
type Unit struct {
	ID         uuid.UUID `json:"id"`
	LocationID uuid.UUID `json:"location_id"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
}

type BookingStatus string

const (
	StatusBooked    BookingStatus = "booked"
	StatusCancelled BookingStatus = "cancelled"
)

// Booking holds one unit for one day.
type Booking struct {
	ID            uuid.UUID     `json:"id"`
	OrgID         string        `json:"org_id"`
	LocationID    uuid.UUID     `json:"location_id"`
	UnitID        uuid.UUID     `json:"unit_id"`
	Date          calendar.Date `json:"date"`
	RenterName    string        `json:"renter_name"`
	RenterContact string        `json:"renter_contact,omitempty"`
	Status        BookingStatus `json:"status"`
	PriceCents    int           `json:"price_cents"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Blackout disables day-rate booking for one date.
type Blackout struct {
	LocationID uuid.UUID     `json:"location_id"`
	Date       calendar.Date `json:"date"`
	Reason     string        `json:"reason,omitempty"`
}

// DayAvailability is the derived capacity of a location on one date.
type DayAvailability struct {
	Date           calendar.Date `json:"date"`
	TotalUnits     int           `json:"total_units"`
	BookedUnits    int           `json:"booked_units"`
	AvailableUnits int           `json:"available_units"`
	Blackout       bool          `json:"blackout"`
	BlackoutReason string        `json:"blackout_reason,omitempty"`
	FullyBooked    bool          `json:"fully_booked"`
	Past           bool          `json:"past"`
	Available      bool          `json:"available"`
}

// DateCheck answers whether one date can be booked.
type DateCheck struct {
	Date           calendar.Date `json:"date"`
	Available      bool          `json:"available"`
	AvailableUnits int           `json:"available_units"`
	Reason         string        `json:"reason,omitempty"`
}

// computeDay derives availability. Blackout and past force the date closed
// whatever the remaining capacity.
func computeDay(date calendar.Date, total, booked int, blackout *Blackout, today calendar.Date) DayAvailability {
	free := total - booked
	if free < 0 {
		free = 0
	}
	day := DayAvailability{
		Date:           date,
		TotalUnits:     total,
		BookedUnits:    booked,
		AvailableUnits: free,
		FullyBooked:    free == 0,
		Past:           date.Before(today),
	}
	if blackout != nil {
		day.Blackout = true
		day.BlackoutReason = blackout.Reason
	}
	day.Available = day.AvailableUnits > 0 && !day.Blackout && !day.Past
	return day
}

// reason names why day is closed, in precedence order.
func (d DayAvailability) reason() string {
	switch {
	case d.Past:
		return ReasonPast
	case d.Blackout:
		return ReasonBlackout
	case d.FullyBooked:
		return ReasonFullyBooked
	}
	return ""
}
