package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

var appointmentColumns = []string{
	"id", "org_id", "staff_id", "client_id", "client_name", "service_id", "service_name", "location_id",
	"appointment_date", "start_time", "end_time", "status", "price_cents", "notes",
	"recurrence_frequency", "recurrence_occurrences", "recurrence_group_id", "recurrence_index",
	"external_id", "created_at", "updated_at",
}

func strPtr(s string) *string { return &s }

func int32Ptr(n int32) *int32 { return &n }

func pgClock(h, m int) pgtype.Time {
	return clockParam(calendar.NewClock(h, m))
}

func TestPostgresStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	group := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows(appointmentColumns).AddRow(
		id, "org-1", strPtr("staff-1"), "client-1", "Dana", "svc-1", "Cut", "loc-1",
		time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), pgClock(9, 0), pgClock(10, 30), "booked", 4500, "",
		strPtr("weekly"), int32Ptr(4), pgtype.UUID{Bytes: group, Valid: true}, int32Ptr(0),
		nil, now, now,
	)
	mock.ExpectQuery("SELECT id, org_id").WithArgs("org-1", id).WillReturnRows(rows)

	store := NewPostgresStore(mock)
	got, err := store.Get(context.Background(), "org-1", id)
	require.NoError(t, err)

	assert.Equal(t, "staff-1", got.StaffID)
	assert.Equal(t, calendar.NewDate(2025, time.March, 10), got.Date)
	assert.Equal(t, calendar.NewClock(9, 0), got.Start)
	assert.Equal(t, calendar.NewClock(10, 30), got.End)
	assert.Equal(t, StatusBooked, got.Status)
	require.NotNil(t, got.RecurrenceRule)
	assert.Equal(t, FrequencyWeekly, got.RecurrenceRule.Frequency)
	require.NotNil(t, got.RecurrenceGroupID)
	assert.Equal(t, group, *got.RecurrenceGroupID)
	assert.Equal(t, 0, *got.RecurrenceIndex)
	assert.Empty(t, got.ExternalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, org_id").WithArgs("org-1", id).WillReturnRows(pgxmock.NewRows(appointmentColumns))

	_, err = NewPostgresStore(mock).Get(context.Background(), "org-1", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreInsertInsideTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(SlotLockKey("org-1", "staff-1", testDate)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT id, org_id").
		WithArgs("org-1", "staff-1", testDate.Time()).
		WillReturnRows(pgxmock.NewRows(appointmentColumns))
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "org-1", "appointment.created.v1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	store := NewPostgresStore(mock)
	a := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
	err = store.WithTx(context.Background(), func(tx Tx) error {
		if err := tx.LockSlot(context.Background(), a.OrgID, a.StaffID, a.Date); err != nil {
			return err
		}
		existing, err := tx.ListForDay(context.Background(), a.OrgID, a.StaffID, a.Date)
		if err != nil {
			return err
		}
		assert.Empty(t, existing)
		if err := tx.Insert(context.Background(), &a); err != nil {
			return err
		}
		return tx.RecordEvent(context.Background(), a.OrgID, "appointment.created.v1", map[string]string{"id": a.ID.String()})
	})
	require.NoError(t, err)
	assert.Equal(t, now, a.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreExclusionViolationIsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23P01", Message: "conflicting key value violates exclusion constraint"})
	mock.ExpectRollback()

	a := booked("staff-1", calendar.NewClock(9, 0), calendar.NewClock(10, 0))
	err = NewPostgresStore(mock).WithTx(context.Background(), func(tx Tx) error {
		return tx.Insert(context.Background(), &a)
	})
	assert.ErrorIs(t, err, ErrSchedulingConflict)
	assert.False(t, IsRetryable(err))
}

func TestPostgresStoreUpdateStatusNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs("org-1", id, "cancelled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = NewPostgresStore(mock).WithTx(context.Background(), func(tx Tx) error {
		return tx.UpdateStatus(context.Background(), "org-1", id, StatusCancelled)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClockRoundTripsThroughPGTime(t *testing.T) {
	for _, c := range []calendar.Clock{0, calendar.NewClock(9, 45), calendar.Clock(calendar.MinutesPerDay)} {
		assert.Equal(t, c, clockFromPG(clockParam(c)))
	}
}
