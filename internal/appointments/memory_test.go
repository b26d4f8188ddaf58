package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

var testDate = calendar.NewDate(2025, time.March, 10)

func booked(staff string, start, end calendar.Clock) Appointment {
	return Appointment{
		ID:       uuid.New(),
		OrgID:    "org-1",
		StaffID:  staff,
		ClientID: "client-1",
		Date:     testDate,
		Start:    start,
		End:      end,
		Status:   StatusBooked,
	}
}

func TestMemoryStoreListForDayExcludesCancelledAndSorts(t *testing.T) {
	store := NewMemoryStore()
	late := booked("staff-1", calendar.NewClock(14, 0), calendar.NewClock(15, 0))
	early := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
	gone := booked("staff-1", calendar.NewClock(11, 0), calendar.NewClock(12, 0))
	gone.Status = StatusCancelled
	other := booked("staff-2", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
	store.Seed(late, early, gone, other)

	got, err := store.ListForDay(context.Background(), "org-1", "staff-1", testDate)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)

	got, err = store.ListForDay(context.Background(), "org-2", "staff-1", testDate)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreWithTxRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.WithTx(context.Background(), func(tx Tx) error {
		a := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
		require.NoError(t, tx.Insert(context.Background(), &a))
		require.NoError(t, tx.RecordEvent(context.Background(), "org-1", "appointment.created.v1", map[string]string{"id": a.ID.String()}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.ListForDay(context.Background(), "org-1", "staff-1", testDate)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, store.Events())
}

func TestMemoryStoreWithTxCommits(t *testing.T) {
	store := NewMemoryStore()
	var id uuid.UUID
	err := store.WithTx(context.Background(), func(tx Tx) error {
		a := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
		if err := tx.Insert(context.Background(), &a); err != nil {
			return err
		}
		id = a.ID
		return tx.RecordEvent(context.Background(), "org-1", "appointment.created.v1", map[string]string{"id": a.ID.String()})
	})
	require.NoError(t, err)

	got, err := store.Get(context.Background(), "org-1", id)
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	require.Len(t, store.Events(), 1)
	assert.Equal(t, "appointment.created.v1", store.Events()[0].Type)

	_, err = store.Get(context.Background(), "org-2", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsDuplicateRecurrenceIndex(t *testing.T) {
	store := NewMemoryStore()
	group := uuid.New()
	zero := 0
	anchor := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
	anchor.RecurrenceGroupID = &group
	anchor.RecurrenceIndex = &zero
	store.Seed(anchor)

	err := store.WithTx(context.Background(), func(tx Tx) error {
		dup := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
		dup.Date = testDate.AddDays(7)
		dup.RecurrenceGroupID = &group
		dup.RecurrenceIndex = &zero
		return tx.Insert(context.Background(), &dup)
	})
	assert.True(t, IsRetryable(err))

	members, err := store.ListGroup(context.Background(), "org-1", group)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	a := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
	store.Seed(a)

	got, err := store.Get(context.Background(), "org-1", a.ID)
	require.NoError(t, err)
	got.Start = calendar.NewClock(12, 0)

	again, err := store.Get(context.Background(), "org-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.NewClock(9, 0), again.Start)
}

func TestSetExternalID(t *testing.T) {
	store := NewMemoryStore()
	a := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
	store.Seed(a)

	require.NoError(t, store.SetExternalID(context.Background(), "org-1", a.ID, "ext-9"))
	got, err := store.Get(context.Background(), "org-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-9", got.ExternalID)

	assert.ErrorIs(t, store.SetExternalID(context.Background(), "org-1", uuid.New(), "x"), ErrNotFound)
}

func TestSetExternalIDSurvivesConcurrentCommit(t *testing.T) {
	store := NewMemoryStore()
	mirrored := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
	store.Seed(mirrored)

	entered := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- store.WithTx(context.Background(), func(tx Tx) error {
			close(entered)
			<-release
			other := booked("staff-2", calendar.NewClock(11, 0), calendar.NewClock(12, 0))
			return tx.Insert(context.Background(), &other)
		})
	}()
	<-entered

	setDone := make(chan error, 1)
	go func() {
		setDone <- store.SetExternalID(context.Background(), "org-1", mirrored.ID, "pos-123")
	}()
	close(release)

	require.NoError(t, <-txDone)
	require.NoError(t, <-setDone)
	got, err := store.Get(context.Background(), "org-1", mirrored.ID)
	require.NoError(t, err)
	assert.Equal(t, "pos-123", got.ExternalID)
}
