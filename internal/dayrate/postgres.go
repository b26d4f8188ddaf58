package dayrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
	"github.com/wolfman30/salon-scheduler/internal/events"
)

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

// PostgresStore persists day-rate data. Capacity writes hold the location
// row lock; the dayrate_bookings_unit_day index rejects a double-booked unit.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a day-rate store on the dayrate_* tables.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("dayrate: pgx pool required")
	}
	return &PostgresStore{db: db}
}

const locationColumns = `
		SELECT id, org_id, name, day_rate_enabled, price_cents, timezone
		FROM dayrate_locations
	`

const bookingColumns = `
		SELECT id, org_id, location_id, unit_id, booking_date, renter_name, renter_contact,
		       status, price_cents, created_at, updated_at
		FROM dayrate_bookings
	`

func (s *PostgresStore) GetLocation(ctx context.Context, orgID string, locationID uuid.UUID) (*Location, error) {
	return getLocation(ctx, s.db, locationColumns+`WHERE org_id = $1 AND id = $2`, orgID, locationID)
}

func (s *PostgresStore) ListUnits(ctx context.Context, locationID uuid.UUID) ([]Unit, error) {
	return listUnits(ctx, s.db, locationID)
}

func (s *PostgresStore) CountBooked(ctx context.Context, locationID uuid.UUID, from, to calendar.Date) (map[calendar.Date]int, error) {
	query := `
		SELECT b.booking_date, COUNT(*)
		FROM dayrate_bookings b
		JOIN dayrate_units u ON u.id = b.unit_id
		WHERE b.location_id = $1 AND b.booking_date BETWEEN $2 AND $3
		  AND b.status <> 'cancelled' AND u.active
		GROUP BY b.booking_date
	`
	rows, err := s.db.Query(ctx, query, locationID, from.Time(), to.Time())
	if err != nil {
		return nil, appointments.WrapStorage("count bookings", err)
	}
	defer rows.Close()

	out := make(map[calendar.Date]int)
	for rows.Next() {
		var (
			day   time.Time
			count int64
		)
		if err := rows.Scan(&day, &count); err != nil {
			return nil, appointments.WrapStorage("scan booking count", err)
		}
		out[calendar.DateOf(day)] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, appointments.WrapStorage("iterate booking counts", err)
	}
	return out, nil
}

func (s *PostgresStore) ListBlackouts(ctx context.Context, locationID uuid.UUID, from, to calendar.Date) ([]Blackout, error) {
	query := `
		SELECT location_id, blackout_date, reason
		FROM dayrate_blackouts
		WHERE location_id = $1 AND blackout_date BETWEEN $2 AND $3
		ORDER BY blackout_date
	`
	rows, err := s.db.Query(ctx, query, locationID, from.Time(), to.Time())
	if err != nil {
		return nil, appointments.WrapStorage("list blackouts", err)
	}
	defer rows.Close()

	var out []Blackout
	for rows.Next() {
		b, err := scanBlackout(rows)
		if err != nil {
			return nil, appointments.WrapStorage("scan blackout", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, appointments.WrapStorage("iterate blackouts", err)
	}
	return out, nil
}

func (s *PostgresStore) GetBooking(ctx context.Context, orgID string, id uuid.UUID) (*Booking, error) {
	return getBooking(ctx, s.db, bookingColumns+`WHERE org_id = $1 AND id = $2`, orgID, id)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return appointments.WrapStorage("begin tx", err)
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

func (t *postgresTx) LockLocation(ctx context.Context, orgID string, locationID uuid.UUID) (*Location, error) {
	return getLocation(ctx, t.tx, locationColumns+`WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, locationID)
}

func (t *postgresTx) ListUnits(ctx context.Context, locationID uuid.UUID) ([]Unit, error) {
	return listUnits(ctx, t.tx, locationID)
}

func (t *postgresTx) BookedUnitIDs(ctx context.Context, locationID uuid.UUID, date calendar.Date) ([]uuid.UUID, error) {
	query := `
		SELECT unit_id
		FROM dayrate_bookings
		WHERE location_id = $1 AND booking_date = $2 AND status <> 'cancelled'
	`
	rows, err := t.tx.Query(ctx, query, locationID, date.Time())
	if err != nil {
		return nil, appointments.WrapStorage("list booked units", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, appointments.WrapStorage("scan booked unit", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, appointments.WrapStorage("iterate booked units", err)
	}
	return out, nil
}

func (t *postgresTx) GetBlackout(ctx context.Context, locationID uuid.UUID, date calendar.Date) (*Blackout, error) {
	query := `
		SELECT location_id, blackout_date, reason
		FROM dayrate_blackouts
		WHERE location_id = $1 AND blackout_date = $2
	`
	b, err := scanBlackout(t.tx.QueryRow(ctx, query, locationID, date.Time()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, appointments.WrapStorage("get blackout", err)
	}
	return b, nil
}

func (t *postgresTx) InsertBooking(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	query := `
		INSERT INTO dayrate_bookings (
			id, org_id, location_id, unit_id, booking_date, renter_name, renter_contact, status, price_cents
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		b.ID, b.OrgID, b.LocationID, b.UnitID, b.Date.Time(), b.RenterName, b.RenterContact, string(b.Status), b.PriceCents,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return mapWriteError("insert booking", err)
	}
	return nil
}

func (t *postgresTx) GetBookingForUpdate(ctx context.Context, orgID string, id uuid.UUID) (*Booking, error) {
	return getBooking(ctx, t.tx, bookingColumns+`WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, id)
}

func (t *postgresTx) UpdateBookingStatus(ctx context.Context, orgID string, id uuid.UUID, status BookingStatus) error {
	query := `
		UPDATE dayrate_bookings
		SET status = $3, updated_at = now()
		WHERE org_id = $1 AND id = $2
	`
	ct, err := t.tx.Exec(ctx, query, orgID, id, string(status))
	if err != nil {
		return mapWriteError("update booking status", err)
	}
	if ct.RowsAffected() == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

func (t *postgresTx) UpsertBlackout(ctx context.Context, b Blackout) error {
	query := `
		INSERT INTO dayrate_blackouts (location_id, blackout_date, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (location_id, blackout_date) DO UPDATE SET reason = EXCLUDED.reason
	`
	if _, err := t.tx.Exec(ctx, query, b.LocationID, b.Date.Time(), b.Reason); err != nil {
		return appointments.WrapStorage("upsert blackout", err)
	}
	return nil
}

func (t *postgresTx) DeleteBlackout(ctx context.Context, locationID uuid.UUID, date calendar.Date) (bool, error) {
	ct, err := t.tx.Exec(ctx, `DELETE FROM dayrate_blackouts WHERE location_id = $1 AND blackout_date = $2`, locationID, date.Time())
	if err != nil {
		return false, appointments.WrapStorage("delete blackout", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (t *postgresTx) RecordEvent(ctx context.Context, orgID, eventType string, payload any) error {
	if _, err := events.InsertTx(ctx, t.tx, orgID, eventType, payload); err != nil {
		return appointments.WrapStorage("record event", err)
	}
	return nil
}

func getLocation(ctx context.Context, q querier, query string, args ...any) (*Location, error) {
	var (
		loc      Location
		timezone *string
	)
	err := q.QueryRow(ctx, query, args...).Scan(&loc.ID, &loc.OrgID, &loc.Name, &loc.DayRateEnabled, &loc.PriceCents, &timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, appointments.ErrNotFound
	}
	if err != nil {
		return nil, appointments.WrapStorage("get location", err)
	}
	if timezone != nil {
		loc.Timezone = *timezone
	}
	return &loc, nil
}

func listUnits(ctx context.Context, q querier, locationID uuid.UUID) ([]Unit, error) {
	rows, err := q.Query(ctx, `SELECT id, location_id, name, active FROM dayrate_units WHERE location_id = $1 ORDER BY name`, locationID)
	if err != nil {
		return nil, appointments.WrapStorage("list units", err)
	}
	defer rows.Close()

	var out []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.LocationID, &u.Name, &u.Active); err != nil {
			return nil, appointments.WrapStorage("scan unit", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, appointments.WrapStorage("iterate units", err)
	}
	return out, nil
}

func getBooking(ctx context.Context, q querier, query string, args ...any) (*Booking, error) {
	var (
		b       Booking
		day     time.Time
		contact *string
		status  string
	)
	err := q.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.OrgID, &b.LocationID, &b.UnitID, &day, &b.RenterName, &contact,
		&status, &b.PriceCents, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, appointments.ErrNotFound
	}
	if err != nil {
		return nil, appointments.WrapStorage("get booking", err)
	}
	b.Date = calendar.DateOf(day)
	b.Status = BookingStatus(status)
	if contact != nil {
		b.RenterContact = *contact
	}
	return &b, nil
}

func scanBlackout(row pgx.Row) (*Blackout, error) {
	var (
		b      Blackout
		day    time.Time
		reason *string
	)
	if err := row.Scan(&b.LocationID, &day, &reason); err != nil {
		return nil, err
	}
	b.Date = calendar.DateOf(day)
	if reason != nil {
		b.Reason = *reason
	}
	return &b, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrCapacityExhausted, pgErr.ConstraintName)
	}
	return appointments.WrapStorage(op, err)
}
