// Package actions implements the propose, confirm, execute workflow through
// which assistants change schedules.
package actions

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

// ErrInvalidActionState is returned for a transition the current status forbids.
var ErrInvalidActionState = errors.New("actions: invalid action state")

// ErrInvalidParams marks params that do not match the action kind.
var ErrInvalidParams = errors.New("actions: invalid params")

type Kind string

const (
	KindReschedule    Kind = "reschedule"
	KindCancel        Kind = "cancel"
	KindCreateBooking Kind = "create_booking"
)

// Valid reports whether k is a known action kind.
func (k Kind) Valid() bool {
	switch k {
	case KindReschedule, KindCancel, KindCreateBooking:
		return true
	}
	return false
}

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusCancelled           Status = "cancelled"
	StatusExecuted            Status = "executed"
	StatusFailed              Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExecuted || s == StatusFailed
}

// Event drives the state machine.
type Event string

const (
	EventConfirm Event = "confirm"
	EventReject  Event = "reject"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
)

// transition is the complete state machine. Every status is handled
// explicitly; anything not listed is rejected.
func transition(from Status, ev Event) (Status, error) {
	switch from {
	case StatusPendingConfirmation:
		switch ev {
		case EventConfirm:
			return StatusConfirmed, nil
		case EventReject:
			return StatusCancelled, nil
		case EventSucceed, EventFail:
			return from, fmt.Errorf("%w: action must be confirmed before it runs", ErrInvalidActionState)
		}
	case StatusConfirmed:
		switch ev {
		case EventSucceed:
			return StatusExecuted, nil
		case EventFail:
			return StatusFailed, nil
		case EventConfirm, EventReject:
			return from, fmt.Errorf("%w: action already confirmed", ErrInvalidActionState)
		}
	case StatusCancelled, StatusExecuted, StatusFailed:
		return from, fmt.Errorf("%w: action is %s", ErrInvalidActionState, from)
	}
	return from, fmt.Errorf("%w: unknown transition %s from %q", ErrInvalidActionState, ev, from)
}

// RescheduleParams moves an appointment.
type RescheduleParams struct {
	AppointmentID uuid.UUID      `json:"appointment_id"`
	NewDate       calendar.Date  `json:"new_date"`
	NewStart      calendar.Clock `json:"new_start_time"`
	NewStaffID    *string        `json:"new_staff_id,omitempty"`
}

// CancelParams cancels an appointment.
type CancelParams struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

// CreateBookingParams books a new appointment, optionally recurring.
type CreateBookingParams struct {
	StaffID        string                       `json:"staff_id,omitempty"`
	ClientID       string                       `json:"client_id"`
	ClientName     string                       `json:"client_name,omitempty"`
	ServiceID      string                       `json:"service_id,omitempty"`
	ServiceName    string                       `json:"service_name,omitempty"`
	LocationID     string                       `json:"location_id,omitempty"`
	Date           calendar.Date                `json:"date"`
	Start          calendar.Clock               `json:"start_time"`
	End            calendar.Clock               `json:"end_time"`
	PriceCents     int                          `json:"price_cents,omitempty"`
	Notes          string                       `json:"notes,omitempty"`
	RecurrenceRule *appointments.RecurrenceRule `json:"recurrence_rule,omitempty"`
}

// Params holds exactly one payload, matching the action kind.
type Params struct {
	Reschedule    *RescheduleParams    `json:"reschedule,omitempty"`
	Cancel        *CancelParams        `json:"cancel,omitempty"`
	CreateBooking *CreateBookingParams `json:"create_booking,omitempty"`
}

// Validate checks that params carry the payload for kind and nothing else.
func (p Params) Validate(kind Kind) error {
	set := 0
	for _, present := range []bool{p.Reschedule != nil, p.Cancel != nil, p.CreateBooking != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one payload is required, got %d", ErrInvalidParams, set)
	}
	switch kind {
	case KindReschedule:
		if p.Reschedule == nil {
			return fmt.Errorf("%w: reschedule payload required", ErrInvalidParams)
		}
		if p.Reschedule.AppointmentID == uuid.Nil || p.Reschedule.NewDate.IsZero() {
			return fmt.Errorf("%w: appointment_id and new_date are required", ErrInvalidParams)
		}
	case KindCancel:
		if p.Cancel == nil || p.Cancel.AppointmentID == uuid.Nil {
			return fmt.Errorf("%w: cancel payload with appointment_id required", ErrInvalidParams)
		}
	case KindCreateBooking:
		if p.CreateBooking == nil {
			return fmt.Errorf("%w: create_booking payload required", ErrInvalidParams)
		}
		if p.CreateBooking.ClientID == "" || p.CreateBooking.Date.IsZero() {
			return fmt.Errorf("%w: client_id and date are required", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, kind)
	}
	return nil
}

// Preview shows the operator what confirming will change.
type Preview struct {
	Summary string `json:"summary"`
	Before  string `json:"before,omitempty"`
	After   string `json:"after,omitempty"`
}

// Action is a proposed schedule change awaiting confirmation.
type Action struct {
	ID            uuid.UUID  `json:"id"`
	OrgID         string     `json:"org_id"`
	Kind          Kind       `json:"kind"`
	Params        Params     `json:"params"`
	Status        Status     `json:"status"`
	Preview       Preview    `json:"preview"`
	ResultMessage string     `json:"result_message,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	ProposedBy    string     `json:"proposed_by"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
}
