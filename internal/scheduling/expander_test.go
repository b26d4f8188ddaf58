package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

func anchorAppointment() appointments.Appointment {
	return appointments.Appointment{
		ID:          uuid.New(),
		OrgID:       "org-1",
		StaffID:     "staff-1",
		ClientID:    "client-1",
		ClientName:  "Dana",
		ServiceID:   "svc-1",
		ServiceName: "Root touch-up",
		Date:        day,
		Start:       clock(9, 0),
		End:         clock(10, 30),
		Status:      appointments.StatusBooked,
		PriceCents:  8500,
		Notes:       "sensitive scalp",
	}
}

func acceptAll(ctx context.Context, c appointments.Appointment) (appointments.Appointment, *appointments.Appointment, error) {
	return c, nil, nil
}

func TestExpandWithoutConflicts(t *testing.T) {
	anchor := anchorAppointment()
	group := uuid.New()

	exp, err := Expand(context.Background(), anchor, appointments.RecurrenceRule{Frequency: appointments.FrequencyEvery4Weeks, Occurrences: 5}, group, acceptAll)
	require.NoError(t, err)

	assert.Equal(t, 5, exp.CreatedCount())
	assert.Empty(t, exp.Skipped())
	created := exp.Created()
	require.Len(t, created, 4)
	for i, a := range created {
		assert.Equal(t, i+1, *a.RecurrenceIndex)
		assert.Equal(t, group, *a.RecurrenceGroupID)
		assert.Equal(t, anchor.Date.AddDays(28*(i+1)), a.Date)
		assert.Equal(t, anchor.Start, a.Start)
		assert.Equal(t, anchor.End, a.End)
		assert.Equal(t, anchor.StaffID, a.StaffID)
		assert.Equal(t, anchor.PriceCents, a.PriceCents)
		assert.Equal(t, anchor.Notes, a.Notes)
		assert.Equal(t, appointments.StatusBooked, a.Status)
		assert.Nil(t, a.RecurrenceRule)
		assert.NotEqual(t, anchor.ID, a.ID)
	}
}

func TestExpandReportsSkippedDates(t *testing.T) {
	anchor := anchorAppointment()
	blocker := seeded("staff-1", clock(9, 30), clock(10, 0), appointments.StatusBooked)
	blocked := anchor.Date.AddDays(14)

	place := func(ctx context.Context, c appointments.Appointment) (appointments.Appointment, *appointments.Appointment, error) {
		if c.Date == blocked {
			return appointments.Appointment{}, &blocker, nil
		}
		return c, nil, nil
	}
	exp, err := Expand(context.Background(), anchor, appointments.RecurrenceRule{Frequency: appointments.FrequencyWeekly, Occurrences: 4}, uuid.New(), place)
	require.NoError(t, err)

	assert.Equal(t, 3, exp.CreatedCount())
	require.Len(t, exp.Skipped(), 1)
	assert.Equal(t, blocked, exp.Skipped()[0].Date)
	assert.Equal(t, blocker.ID, exp.Skipped()[0].ConflictingID)
	assert.Contains(t, exp.Skipped()[0].Reason, "Morgan")

	indices := []int{}
	for _, a := range exp.Created() {
		indices = append(indices, *a.RecurrenceIndex)
	}
	assert.Equal(t, []int{1, 3}, indices, "indices follow occurrence position, gaps mark skipped dates")
}

func TestExpandIsSequential(t *testing.T) {
	var seen []calendar.Date
	place := func(ctx context.Context, c appointments.Appointment) (appointments.Appointment, *appointments.Appointment, error) {
		seen = append(seen, c.Date)
		return c, nil, nil
	}
	anchor := anchorAppointment()
	_, err := Expand(context.Background(), anchor, appointments.RecurrenceRule{Frequency: appointments.FrequencyWeekly, Occurrences: 4}, uuid.New(), place)
	require.NoError(t, err)
	assert.Equal(t, []calendar.Date{anchor.Date.AddDays(7), anchor.Date.AddDays(14), anchor.Date.AddDays(21)}, seen)
}

func TestExpandAbortsOnStorageError(t *testing.T) {
	boom := appointments.WrapStorage("insert", errors.New("connection reset"))
	place := func(ctx context.Context, c appointments.Appointment) (appointments.Appointment, *appointments.Appointment, error) {
		return appointments.Appointment{}, nil, boom
	}
	_, err := Expand(context.Background(), anchorAppointment(), appointments.RecurrenceRule{Frequency: appointments.FrequencyWeekly, Occurrences: 3}, uuid.New(), place)
	assert.True(t, appointments.IsRetryable(err))
}

func TestExpandRejectsInvalidRule(t *testing.T) {
	_, err := Expand(context.Background(), anchorAppointment(), appointments.RecurrenceRule{Frequency: appointments.FrequencyWeekly, Occurrences: 1}, uuid.New(), acceptAll)
	assert.ErrorIs(t, err, appointments.ErrInvalidRecurrenceRule)
}

func TestExpansionResultsAreCopies(t *testing.T) {
	exp, err := Expand(context.Background(), anchorAppointment(), appointments.RecurrenceRule{Frequency: appointments.FrequencyWeekly, Occurrences: 3}, uuid.New(), acceptAll)
	require.NoError(t, err)

	created := exp.Created()
	created[0].Date = calendar.NewDate(2030, time.January, 1)
	assert.NotEqual(t, created[0].Date, exp.Created()[0].Date)

	anchor := exp.Anchor()
	anchor.ClientName = "changed"
	assert.Equal(t, anchorAppointment().ClientName, exp.Anchor().ClientName)
}
