// Package scheduling implements slot conflict detection, recurrence
// expansion and the create/reschedule/cancel engine.
package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Back-to-back intervals do not overlap.
func Overlaps(s1, e1, s2, e2 calendar.Clock) bool {
	return s1 < e2 && s2 < e1
}

// Slot is a proposed interval for one staff member on one date.
type Slot struct {
	OrgID   string
	StaffID string
	Date    calendar.Date
	Start   calendar.Clock
	End     calendar.Clock

	// Exclude is ignored in the comparison set, used when an appointment is
	// checked against its own destination.
	Exclude uuid.UUID
}

// SlotOf returns the slot currently occupied by a.
func SlotOf(a appointments.Appointment) Slot {
	return Slot{OrgID: a.OrgID, StaffID: a.StaffID, Date: a.Date, Start: a.Start, End: a.End}
}

// FindConflict returns the first non-cancelled appointment of the same staff
// member and date that overlaps slot, or nil. Unassigned slots never conflict.
func FindConflict(ctx context.Context, reader appointments.DayReader, slot Slot) (*appointments.Appointment, error) {
	if slot.StaffID == "" {
		return nil, nil
	}
	existing, err := reader.ListForDay(ctx, slot.OrgID, slot.StaffID, slot.Date)
	if err != nil {
		if appointments.IsRetryable(err) {
			return nil, err
		}
		return nil, appointments.WrapStorage("list day", err)
	}
	for i := range existing {
		a := existing[i]
		if a.ID == slot.Exclude || a.Cancelled() {
			continue
		}
		if Overlaps(slot.Start, slot.End, a.Start, a.End) {
			return &a, nil
		}
	}
	return nil, nil
}

// HasConflict reports whether slot collides with an existing booking.
func HasConflict(ctx context.Context, reader appointments.DayReader, slot Slot) (bool, error) {
	conflict, err := FindConflict(ctx, reader, slot)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}
