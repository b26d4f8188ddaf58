package scheduling

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

// SkippedDate is an occurrence that was not booked.
type SkippedDate struct {
	Date          calendar.Date `json:"date"`
	Reason        string        `json:"reason"`
	ConflictingID uuid.UUID     `json:"conflicting_appointment_id"`
}

// Expansion is the result of folding a recurrence rule over its dates.
// Values are never mutated in place; each step returns a new Expansion.
type Expansion struct {
	groupID uuid.UUID
	anchor  appointments.Appointment
	created []appointments.Appointment
	skipped []SkippedDate
}

func newExpansion(anchor appointments.Appointment, groupID uuid.UUID) Expansion {
	return Expansion{groupID: groupID, anchor: anchor.Clone()}
}

// GroupID is the recurrence group shared by every series member.
func (e Expansion) GroupID() uuid.UUID { return e.groupID }

// Anchor returns a copy of the series anchor.
func (e Expansion) Anchor() appointments.Appointment { return e.anchor.Clone() }

// Created returns the instances booked after the anchor.
func (e Expansion) Created() []appointments.Appointment { return slices.Clone(e.created) }

// Skipped returns the dates that were not booked.
func (e Expansion) Skipped() []SkippedDate { return slices.Clone(e.skipped) }

// CreatedCount includes the anchor.
func (e Expansion) CreatedCount() int { return len(e.created) + 1 }

func (e Expansion) withCreated(a appointments.Appointment) Expansion {
	e.created = append(slices.Clip(e.created), a)
	return e
}

func (e Expansion) withSkipped(s SkippedDate) Expansion {
	e.skipped = append(slices.Clip(e.skipped), s)
	return e
}

// PlaceFunc books one candidate. It returns the stored appointment, or the
// booking that blocks the candidate's slot. Any error aborts the fold.
type PlaceFunc func(ctx context.Context, candidate appointments.Appointment) (placed appointments.Appointment, conflict *appointments.Appointment, err error)

// Expand walks the rule's dates in order, placing one instance per date.
// Order matters: each placement must see the instances booked before it.
func Expand(ctx context.Context, anchor appointments.Appointment, rule appointments.RecurrenceRule, groupID uuid.UUID, place PlaceFunc) (Expansion, error) {
	if err := rule.Validate(); err != nil {
		return Expansion{}, err
	}
	acc := newExpansion(anchor, groupID)
	for i, date := range OccurrenceDates(anchor.Date, rule) {
		if err := ctx.Err(); err != nil {
			return Expansion{}, appointments.WrapStorage("expand recurrence", err)
		}
		candidate := Instance(anchor, date, groupID, i+1)
		placed, conflict, err := place(ctx, candidate)
		if err != nil {
			return Expansion{}, err
		}
		if conflict != nil {
			acc = acc.withSkipped(SkippedDate{
				Date:          date,
				Reason:        fmt.Sprintf("conflicts with %s", conflict.Summary()),
				ConflictingID: conflict.ID,
			})
			continue
		}
		acc = acc.withCreated(placed)
	}
	return acc, nil
}

// Instance derives the index-th member of anchor's series on date.
func Instance(anchor appointments.Appointment, date calendar.Date, groupID uuid.UUID, index int) appointments.Appointment {
	g := groupID
	idx := index
	return appointments.Appointment{
		ID:                uuid.New(),
		OrgID:             anchor.OrgID,
		StaffID:           anchor.StaffID,
		ClientID:          anchor.ClientID,
		ClientName:        anchor.ClientName,
		ServiceID:         anchor.ServiceID,
		ServiceName:       anchor.ServiceName,
		LocationID:        anchor.LocationID,
		Date:              date,
		Start:             anchor.Start,
		End:               anchor.End,
		Status:            appointments.StatusBooked,
		PriceCents:        anchor.PriceCents,
		Notes:             anchor.Notes,
		RecurrenceGroupID: &g,
		RecurrenceIndex:   &idx,
	}
}
