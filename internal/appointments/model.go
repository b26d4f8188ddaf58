// Package appointments owns the appointment entity and its storage.
package appointments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusBooked, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Frequency is the cadence of a recurring series.
type Frequency string

const (
	FrequencyWeekly      Frequency = "weekly"
	FrequencyEvery2Weeks Frequency = "every_2_weeks"
	FrequencyEvery4Weeks Frequency = "every_4_weeks"
	FrequencyEvery6Weeks Frequency = "every_6_weeks"
	FrequencyEvery8Weeks Frequency = "every_8_weeks"
	FrequencyMonthly     Frequency = "monthly"
)

// CadenceDays returns the fixed day step for the frequency, or 0 for the
// calendar-month cadence and unknown values.
func (f Frequency) CadenceDays() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyEvery2Weeks:
		return 14
	case FrequencyEvery4Weeks:
		return 28
	case FrequencyEvery6Weeks:
		return 42
	case FrequencyEvery8Weeks:
		return 56
	}
	return 0
}

// Valid reports whether f is a supported cadence.
func (f Frequency) Valid() bool {
	return f == FrequencyMonthly || f.CadenceDays() > 0
}

// MinOccurrences is the smallest series a rule may describe (anchor + 1).
const MinOccurrences = 2

// MaxOccurrences bounds a single expansion batch.
const MaxOccurrences = 52

// RecurrenceRule describes how an anchor appointment repeats.
type RecurrenceRule struct {
	Frequency   Frequency `json:"frequency"`
	Occurrences int       `json:"occurrences"`
}

// Validate checks the rule, returning an error wrapping ErrInvalidRecurrenceRule.
func (r RecurrenceRule) Validate() error {
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrenceRule, r.Frequency)
	}
	if r.Occurrences < MinOccurrences {
		return fmt.Errorf("%w: occurrences must be at least %d, got %d", ErrInvalidRecurrenceRule, MinOccurrences, r.Occurrences)
	}
	if r.Occurrences > MaxOccurrences {
		return fmt.Errorf("%w: occurrences must be at most %d, got %d", ErrInvalidRecurrenceRule, MaxOccurrences, r.Occurrences)
	}
	return nil
}

// Appointment is one scheduled service occurrence.
type Appointment struct {
	ID          uuid.UUID      `json:"id"`
	OrgID       string         `json:"org_id"`
	StaffID     string         `json:"staff_id,omitempty"`
	ClientID    string         `json:"client_id"`
	ClientName  string         `json:"client_name,omitempty"`
	ServiceID   string         `json:"service_id,omitempty"`
	ServiceName string         `json:"service_name,omitempty"`
	LocationID  string         `json:"location_id,omitempty"`
	Date        calendar.Date  `json:"date"`
	Start       calendar.Clock `json:"start_time"`
	End         calendar.Clock `json:"end_time"`
	Status      Status         `json:"status"`
	PriceCents  int            `json:"price_cents"`
	Notes       string         `json:"notes,omitempty"`

	RecurrenceRule    *RecurrenceRule `json:"recurrence_rule,omitempty"`
	RecurrenceGroupID *uuid.UUID      `json:"recurrence_group_id,omitempty"`
	RecurrenceIndex   *int            `json:"recurrence_index,omitempty"`

	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Duration returns the length of the booked interval.
func (a Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// Assigned reports whether a staff member holds the appointment.
func (a Appointment) Assigned() bool { return a.StaffID != "" }

// Cancelled reports whether the appointment has left the schedule.
func (a Appointment) Cancelled() bool { return a.Status == StatusCancelled }

// InSeries reports whether the appointment already belongs to a recurrence group.
func (a Appointment) InSeries() bool { return a.RecurrenceGroupID != nil }

// Summary is a short human label used in conflict messages and previews.
func (a Appointment) Summary() string {
	who := a.ClientName
	if who == "" {
		who = a.ClientID
	}
	if who == "" {
		who = "another client"
	}
	label := fmt.Sprintf("%s %s-%s", a.Date, a.Start, a.End)
	if a.ServiceName != "" {
		return fmt.Sprintf("%s (%s, %s)", who, a.ServiceName, label)
	}
	return fmt.Sprintf("%s (%s)", who, label)
}

// ValidateTimes checks that the interval is non-empty and within one day.
func ValidateTimes(start, end calendar.Clock) error {
	if !start.ValidStart() || !end.ValidEnd() {
		return fmt.Errorf("%w: %s-%s is outside the day", ErrInvalidTimeRange, start, end)
	}
	if start >= end {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidTimeRange, start, end)
	}
	return nil
}

// Clone returns a deep copy so stored rows cannot be mutated through
// returned values.
func (a Appointment) Clone() Appointment {
	out := a
	if a.RecurrenceRule != nil {
		rule := *a.RecurrenceRule
		out.RecurrenceRule = &rule
	}
	if a.RecurrenceGroupID != nil {
		id := *a.RecurrenceGroupID
		out.RecurrenceGroupID = &id
	}
	if a.RecurrenceIndex != nil {
		idx := *a.RecurrenceIndex
		out.RecurrenceIndex = &idx
	}
	return out
}
