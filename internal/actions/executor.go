package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/scheduling"
)

// Executor previews and applies the schedule change behind an action.
type Executor interface {
	Preview(ctx context.Context, orgID string, kind Kind, params Params) (Preview, error)
	Execute(ctx context.Context, a Action) (string, error)
}

// EngineExecutor runs actions through the scheduling engine, so confirmed
// actions get the same conflict checks and sync as direct requests.
type EngineExecutor struct {
	engine *scheduling.Engine
}

// NewEngineExecutor runs actions against the scheduling engine.
func NewEngineExecutor(engine *scheduling.Engine) *EngineExecutor {
	if engine == nil {
		panic("actions: scheduling engine required")
	}
	return &EngineExecutor{engine: engine}
}

// Preview describes what the action would change without changing it.
func (x *EngineExecutor) Preview(ctx context.Context, orgID string, kind Kind, params Params) (Preview, error) {
	switch kind {
	case KindReschedule:
		p := params.Reschedule
		current, err := x.live(ctx, orgID, p.AppointmentID)
		if err != nil {
			return Preview{}, err
		}
		next := current.Clone()
		next.Date = p.NewDate
		next.Start = p.NewStart
		next.End = p.NewStart.Add(current.Duration())
		if p.NewStaffID != nil {
			next.StaffID = *p.NewStaffID
		}
		if err := appointments.ValidateTimes(next.Start, next.End); err != nil {
			return Preview{}, err
		}
		return Preview{
			Summary: "Reschedule " + current.Summary(),
			Before:  describe(*current),
			After:   describe(next),
		}, nil
	case KindCancel:
		current, err := x.live(ctx, orgID, params.Cancel.AppointmentID)
		if err != nil {
			return Preview{}, err
		}
		return Preview{
			Summary: "Cancel " + current.Summary(),
			Before:  describe(*current),
			After:   "cancelled",
		}, nil
	case KindCreateBooking:
		p := params.CreateBooking
		if err := appointments.ValidateTimes(p.Start, p.End); err != nil {
			return Preview{}, err
		}
		if p.RecurrenceRule != nil {
			if err := p.RecurrenceRule.Validate(); err != nil {
				return Preview{}, err
			}
		}
		draft := appointments.Appointment{
			StaffID:     p.StaffID,
			ClientID:    p.ClientID,
			ClientName:  p.ClientName,
			ServiceName: p.ServiceName,
			Date:        p.Date,
			Start:       p.Start,
			End:         p.End,
		}
		summary := "Book " + draft.Summary()
		if p.RecurrenceRule != nil {
			summary += fmt.Sprintf(", repeating %s for %d occurrences", p.RecurrenceRule.Frequency, p.RecurrenceRule.Occurrences)
		}
		return Preview{Summary: summary, After: describe(draft)}, nil
	}
	return Preview{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, kind)
}

// Execute applies the action and returns a human readable summary.
func (x *EngineExecutor) Execute(ctx context.Context, a Action) (string, error) {
	switch a.Kind {
	case KindReschedule:
		p := a.Params.Reschedule
		out, err := x.engine.Reschedule(ctx, scheduling.RescheduleRequest{
			OrgID:         a.OrgID,
			AppointmentID: p.AppointmentID,
			NewDate:       p.NewDate,
			NewStart:      p.NewStart,
			NewStaffID:    p.NewStaffID,
		})
		if err != nil {
			return "", err
		}
		return "Rescheduled to " + describe(out.Local.Appointment) + syncNote(out), nil
	case KindCancel:
		out, err := x.engine.Cancel(ctx, a.OrgID, a.Params.Cancel.AppointmentID)
		if err != nil {
			return "", err
		}
		return "Cancelled " + out.Local.Appointment.Summary() + syncNote(out), nil
	case KindCreateBooking:
		p := a.Params.CreateBooking
		out, err := x.engine.Create(ctx, scheduling.NewAppointment{
			OrgID:          a.OrgID,
			StaffID:        p.StaffID,
			ClientID:       p.ClientID,
			ClientName:     p.ClientName,
			ServiceID:      p.ServiceID,
			ServiceName:    p.ServiceName,
			LocationID:     p.LocationID,
			Date:           p.Date,
			Start:          p.Start,
			End:            p.End,
			PriceCents:     p.PriceCents,
			Notes:          p.Notes,
			RecurrenceRule: p.RecurrenceRule,
		})
		if err != nil {
			return "", err
		}
		msg := "Booked " + out.Local.Appointment.Summary()
		if out.Local.CreatedCount > 1 || len(out.Local.Skipped) > 0 {
			msg += fmt.Sprintf(" (%d appointments, %d dates skipped)", out.Local.CreatedCount, len(out.Local.Skipped))
		}
		return msg + syncNote(out), nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, a.Kind)
}

func (x *EngineExecutor) live(ctx context.Context, orgID string, id uuid.UUID) (*appointments.Appointment, error) {
	current, err := x.engine.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if current.Cancelled() {
		return nil, appointments.ErrAlreadyCancelled
	}
	return current, nil
}

func describe(a appointments.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s-%s", a.Date, a.Start, a.End)
	if a.Assigned() {
		fmt.Fprintf(&b, " with %s", a.StaffID)
	} else {
		b.WriteString(" unassigned")
	}
	return b.String()
}

func syncNote(out scheduling.Outcome) string {
	switch {
	case out.Remote == nil:
		return ""
	case out.Remote.AppliedRemotely:
		return "; mirrored to the POS"
	case out.Remote.Error != "":
		return "; POS update failed: " + out.Remote.Error
	}
	return ""
}
