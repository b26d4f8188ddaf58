package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
	"github.com/wolfman30/salon-scheduler/internal/events"
)

// querier is shared by pools and open transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB abstracts the pgx pool for testing.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists appointments in Postgres. Same-slot writers are
// serialised with a transaction-scoped advisory lock and the
// appointments_no_overlap exclusion constraint rejects anything that slips by.
type PostgresStore struct {
	db DB
}

// NewPostgresStore wires the store to a pgx pool.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{db: db}
}

const selectColumns = `
		SELECT id, org_id, staff_id, client_id, client_name, service_id, service_name, location_id,
		       appointment_date, start_time, end_time, status, price_cents, notes,
		       recurrence_frequency, recurrence_occurrences, recurrence_group_id, recurrence_index,
		       external_id, created_at, updated_at
		FROM appointments
	`

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

func (s *PostgresStore) Get(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, s.db, selectColumns+`WHERE org_id = $1 AND id = $2`, orgID, id)
}

func (s *PostgresStore) ListForDay(ctx context.Context, orgID, staffID string, date calendar.Date) ([]Appointment, error) {
	return listForDayPG(ctx, s.db, orgID, staffID, date)
}

func (s *PostgresStore) ListGroup(ctx context.Context, orgID string, groupID uuid.UUID) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, selectColumns+`WHERE org_id = $1 AND recurrence_group_id = $2 ORDER BY recurrence_index`, orgID, groupID)
	if err != nil {
		return nil, WrapStorage("list group", err)
	}
	return collectAppointments(rows)
}

func (s *PostgresStore) SetExternalID(ctx context.Context, orgID string, id uuid.UUID, externalID string) error {
	query := `
		UPDATE appointments
		SET external_id = $3, updated_at = now()
		WHERE org_id = $1 AND id = $2
	`
	ct, err := s.db.Exec(ctx, query, orgID, id, externalID)
	if err != nil {
		return WrapStorage("set external id", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return WrapStorage("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapWriteError("commit", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) ListForDay(ctx context.Context, orgID, staffID string, date calendar.Date) ([]Appointment, error) {
	return listForDayPG(ctx, t.tx, orgID, staffID, date)
}

func (t *postgresTx) GetForUpdate(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, t.tx, selectColumns+`WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, id)
}

func (t *postgresTx) LockSlot(ctx context.Context, orgID, staffID string, date calendar.Date) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, SlotLockKey(orgID, staffID, date)); err != nil {
		return WrapStorage("lock slot", err)
	}
	return nil
}

func (t *postgresTx) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	query := `
		INSERT INTO appointments (
			id, org_id, staff_id, client_id, client_name, service_id, service_name, location_id,
			appointment_date, start_time, end_time, status, price_cents, notes,
			recurrence_frequency, recurrence_occurrences, recurrence_group_id, recurrence_index, external_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at
	`
	var freq *string
	var occurrences *int32
	if a.RecurrenceRule != nil {
		f := string(a.RecurrenceRule.Frequency)
		n := int32(a.RecurrenceRule.Occurrences)
		freq, occurrences = &f, &n
	}
	err := t.tx.QueryRow(ctx, query,
		a.ID,
		a.OrgID,
		nullString(a.StaffID),
		a.ClientID,
		a.ClientName,
		a.ServiceID,
		a.ServiceName,
		a.LocationID,
		a.Date.Time(),
		clockParam(a.Start),
		clockParam(a.End),
		string(a.Status),
		a.PriceCents,
		a.Notes,
		freq,
		occurrences,
		uuidParam(a.RecurrenceGroupID),
		intParam(a.RecurrenceIndex),
		nullString(a.ExternalID),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return mapWriteError("insert appointment", err)
	}
	return nil
}

func (t *postgresTx) UpdateSchedule(ctx context.Context, a *Appointment) error {
	query := `
		UPDATE appointments
		SET appointment_date = $3, start_time = $4, end_time = $5, staff_id = $6, updated_at = now()
		WHERE org_id = $1 AND id = $2
		RETURNING updated_at
	`
	err := t.tx.QueryRow(ctx, query, a.OrgID, a.ID, a.Date.Time(), clockParam(a.Start), clockParam(a.End), nullString(a.StaffID)).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return mapWriteError("update schedule", err)
	}
	return nil
}

func (t *postgresTx) UpdateStatus(ctx context.Context, orgID string, id uuid.UUID, status Status) error {
	ct, err := t.tx.Exec(ctx, `UPDATE appointments SET status = $3, updated_at = now() WHERE org_id = $1 AND id = $2`, orgID, id, string(status))
	if err != nil {
		return WrapStorage("update status", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) TagRecurrence(ctx context.Context, orgID string, id uuid.UUID, groupID uuid.UUID, index int, rule *RecurrenceRule) error {
	query := `
		UPDATE appointments
		SET recurrence_group_id = $3,
		    recurrence_index = $4,
		    recurrence_frequency = COALESCE($5, recurrence_frequency),
		    recurrence_occurrences = COALESCE($6, recurrence_occurrences),
		    updated_at = now()
		WHERE org_id = $1 AND id = $2
	`
	var freq *string
	var occurrences *int32
	if rule != nil {
		f := string(rule.Frequency)
		n := int32(rule.Occurrences)
		freq, occurrences = &f, &n
	}
	ct, err := t.tx.Exec(ctx, query, orgID, id, groupID, int32(index), freq, occurrences)
	if err != nil {
		return mapWriteError("tag recurrence", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) RecordEvent(ctx context.Context, orgID, eventType string, payload any) error {
	if _, err := events.InsertTx(ctx, t.tx, orgID, eventType, payload); err != nil {
		return WrapStorage("record event", err)
	}
	return nil
}

// SlotLockKey is the advisory lock key for one staff member's day.
func SlotLockKey(orgID, staffID string, date calendar.Date) string {
	return fmt.Sprintf("appointments|%s|%s|%s", orgID, staffID, date)
}

func listForDayPG(ctx context.Context, q querier, orgID, staffID string, date calendar.Date) ([]Appointment, error) {
	query := selectColumns + `
		WHERE org_id = $1 AND staff_id = $2 AND appointment_date = $3 AND status <> 'cancelled'
		ORDER BY start_time
	`
	rows, err := q.Query(ctx, query, orgID, staffID, date.Time())
	if err != nil {
		return nil, WrapStorage("list day", err)
	}
	return collectAppointments(rows)
}

func getAppointment(ctx context.Context, q querier, query string, args ...any) (*Appointment, error) {
	a, err := scanAppointment(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, WrapStorage("get appointment", err)
	}
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, WrapStorage("scan appointment", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStorage("iterate appointments", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a           Appointment
		staffID     *string
		date        time.Time
		start, end  pgtype.Time
		status      string
		freq        *string
		occurrences *int32
		groupID     pgtype.UUID
		index       *int32
		externalID  *string
	)
	if err := row.Scan(
		&a.ID,
		&a.OrgID,
		&staffID,
		&a.ClientID,
		&a.ClientName,
		&a.ServiceID,
		&a.ServiceName,
		&a.LocationID,
		&date,
		&start,
		&end,
		&status,
		&a.PriceCents,
		&a.Notes,
		&freq,
		&occurrences,
		&groupID,
		&index,
		&externalID,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if staffID != nil {
		a.StaffID = *staffID
	}
	if externalID != nil {
		a.ExternalID = *externalID
	}
	a.Date = calendar.DateOf(date)
	a.Start = clockFromPG(start)
	a.End = clockFromPG(end)
	a.Status = Status(status)
	if freq != nil && occurrences != nil {
		a.RecurrenceRule = &RecurrenceRule{Frequency: Frequency(*freq), Occurrences: int(*occurrences)}
	}
	if groupID.Valid {
		g := uuid.UUID(groupID.Bytes)
		a.RecurrenceGroupID = &g
	}
	if index != nil {
		i := int(*index)
		a.RecurrenceIndex = &i
	}
	return &a, nil
}

// mapWriteError turns constraint violations into domain errors.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return fmt.Errorf("%w: %s", ErrSchedulingConflict, pgErr.Message)
		case pgUniqueViolation:
			return WrapStorage(op, fmt.Errorf("%s: %w", pgErr.ConstraintName, err))
		}
	}
	return WrapStorage(op, err)
}

func clockParam(c calendar.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func clockFromPG(t pgtype.Time) calendar.Clock {
	return calendar.Clock(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func uuidParam(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func intParam(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
