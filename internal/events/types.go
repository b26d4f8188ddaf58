package events

import "time"

// Event types written to the outbox by the scheduling core.
const (
	TypeAppointmentCreated     = "appointment.created.v1"
	TypeAppointmentRescheduled = "appointment.rescheduled.v1"
	TypeAppointmentCancelled   = "appointment.cancelled.v1"
	TypeSeriesCreated          = "appointment.series_created.v1"
	TypeDayRateBooked          = "dayrate.booked.v1"
	TypeDayRateCancelled       = "dayrate.cancelled.v1"
	TypeSyncFailed             = "possync.failed.v1"
	TypeActionExecuted         = "action.executed.v1"
	TypeActionFailed           = "action.failed.v1"
)

type AppointmentChangedV1 struct {
	EventID       string    `json:"event_id"`
	OrgID         string    `json:"org_id"`
	AppointmentID string    `json:"appointment_id"`
	StaffID       string    `json:"staff_id,omitempty"`
	ClientID      string    `json:"client_id,omitempty"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	PreviousDate  string    `json:"previous_date,omitempty"`
	PreviousStart string    `json:"previous_start_time,omitempty"`
	PreviousStaff string    `json:"previous_staff_id,omitempty"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type SeriesCreatedV1 struct {
	EventID      string    `json:"event_id"`
	OrgID        string    `json:"org_id"`
	GroupID      string    `json:"recurrence_group_id"`
	AnchorID     string    `json:"anchor_appointment_id"`
	Frequency    string    `json:"frequency"`
	CreatedCount int       `json:"created_count"`
	SkippedDates []string  `json:"skipped_dates,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type DayRateBookingV1 struct {
	EventID    string    `json:"event_id"`
	OrgID      string    `json:"org_id"`
	BookingID  string    `json:"booking_id"`
	LocationID string    `json:"location_id"`
	UnitID     string    `json:"unit_id,omitempty"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SyncFailedV1 alerts operators that a local change was not mirrored to the POS.
type SyncFailedV1 struct {
	EventID       string    `json:"event_id"`
	OrgID         string    `json:"org_id"`
	AppointmentID string    `json:"appointment_id"`
	Mutation      string    `json:"mutation"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type ActionResolvedV1 struct {
	EventID    string    `json:"event_id"`
	OrgID      string    `json:"org_id"`
	ActionID   string    `json:"action_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
