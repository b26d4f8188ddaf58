package dayrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
	"github.com/wolfman30/salon-scheduler/internal/events"
	"github.com/wolfman30/salon-scheduler/internal/observability/metrics"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

var allocatorTracer = otel.Tracer("salon.internal.dayrate.allocator")

// DefaultMaxRangeDays caps one availability request.
const DefaultMaxRangeDays = 92

// BookRequest asks for any free unit at a location on a date.
type BookRequest struct {
	OrgID         string
	LocationID    uuid.UUID
	Date          calendar.Date
	RenterName    string
	RenterContact string
	// Today is the caller's local date. Zero means today in the location's timezone.
	Today calendar.Date
}

// Allocator computes and books day-rate capacity.
type Allocator struct {
	store    Store
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	maxRange int
	now      func() time.Time
}

// NewAllocator builds the day-rate allocator.
func NewAllocator(store Store, logger *logging.Logger) *Allocator {
	if store == nil {
		panic("dayrate: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Allocator{
		store:    store,
		logger:   logger,
		maxRange: DefaultMaxRangeDays,
		now:      time.Now,
	}
}

// WithMetrics attaches booking metrics. Nil is allowed.
func (a *Allocator) WithMetrics(m *metrics.SchedulingMetrics) *Allocator {
	a.metrics = m
	return a
}

// WithMaxRange caps the days one availability query may span.
func (a *Allocator) WithMaxRange(days int) *Allocator {
	if days > 0 {
		a.maxRange = days
	}
	return a
}

// Today resolves the caller's calendar day: tz when it names a valid zone,
// else the location's timezone, else UTC.
func (a *Allocator) Today(ctx context.Context, orgID string, locationID uuid.UUID, tz string) (calendar.Date, error) {
	if tz = strings.TrimSpace(tz); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return calendar.Today(a.now(), loc), nil
		}
	}
	loc, err := a.store.GetLocation(ctx, orgID, locationID)
	if err != nil {
		return calendar.Date{}, err
	}
	return calendar.Today(a.now(), loc.Zone()), nil
}

// Availability reports capacity for each date in [from, to].
func (a *Allocator) Availability(ctx context.Context, orgID string, locationID uuid.UUID, from, to, today calendar.Date) ([]DayAvailability, error) {
	ctx, span := allocatorTracer.Start(ctx, "dayrate.availability")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID), attribute.String("location_id", locationID.String()))

	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, fmt.Errorf("%w: from %s to %s", ErrInvalidRange, from, to)
	}
	if days := from.DaysUntil(to) + 1; days > a.maxRange {
		return nil, fmt.Errorf("%w: %d days requested, at most %d allowed", ErrInvalidRange, days, a.maxRange)
	}

	loc, err := a.offered(ctx, orgID, locationID)
	if err != nil {
		return nil, err
	}
	if today.IsZero() {
		today = calendar.Today(a.now(), loc.Zone())
	}
	units, err := a.store.ListUnits(ctx, locationID)
	if err != nil {
		return nil, appointments.WrapStorage("list units", err)
	}
	booked, err := a.store.CountBooked(ctx, locationID, from, to)
	if err != nil {
		return nil, appointments.WrapStorage("count bookings", err)
	}
	blackouts, err := a.store.ListBlackouts(ctx, locationID, from, to)
	if err != nil {
		return nil, appointments.WrapStorage("list blackouts", err)
	}
	closed := make(map[calendar.Date]*Blackout, len(blackouts))
	for i := range blackouts {
		closed[blackouts[i].Date] = &blackouts[i]
	}

	total := activeCount(units)
	out := make([]DayAvailability, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, computeDay(d, total, booked[d], closed[d], today))
	}
	return out, nil
}

// CheckDate answers whether date can be booked. A location without day-rate
// booking reports not_offered rather than an error.
func (a *Allocator) CheckDate(ctx context.Context, orgID string, locationID uuid.UUID, date, today calendar.Date) (DateCheck, error) {
	days, err := a.Availability(ctx, orgID, locationID, date, date, today)
	if errors.Is(err, ErrNotOffered) {
		return DateCheck{Date: date, Reason: ReasonNotOffered}, nil
	}
	if err != nil {
		return DateCheck{}, err
	}
	day := days[0]
	return DateCheck{Date: date, Available: day.Available, AvailableUnits: day.AvailableUnits, Reason: day.reason()}, nil
}

// Book re-validates capacity under the location lock and takes the first
// free active unit.
func (a *Allocator) Book(ctx context.Context, req BookRequest) (booking *Booking, err error) {
	ctx, span := allocatorTracer.Start(ctx, "dayrate.book")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", req.OrgID), attribute.String("location_id", req.LocationID.String()), attribute.String("date", req.Date.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		a.metrics.ObserveDayRateBooking(bookingOutcome(err))
	}()

	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.RenterName) == "" {
		return nil, fmt.Errorf("%w: renter name is required", ErrInvalidRequest)
	}

	err = a.store.WithTx(ctx, func(tx Tx) error {
		loc, err := tx.LockLocation(ctx, req.OrgID, req.LocationID)
		if err != nil {
			return err
		}
		if !loc.DayRateEnabled {
			return ErrNotOffered
		}
		today := req.Today
		if today.IsZero() {
			today = calendar.Today(a.now(), loc.Zone())
		}
		if req.Date.Before(today) {
			return fmt.Errorf("%w: %s is in the past", ErrDateUnavailable, req.Date)
		}
		blackout, err := tx.GetBlackout(ctx, loc.ID, req.Date)
		if err != nil {
			return err
		}
		if blackout != nil {
			return fmt.Errorf("%w: %s is blacked out", ErrDateUnavailable, req.Date)
		}

		units, err := tx.ListUnits(ctx, loc.ID)
		if err != nil {
			return err
		}
		taken, err := tx.BookedUnitIDs(ctx, loc.ID, req.Date)
		if err != nil {
			return err
		}
		unit, ok := firstFree(units, taken)
		if !ok {
			return fmt.Errorf("%w: %s on %s", ErrCapacityExhausted, loc.Name, req.Date)
		}

		b := &Booking{
			ID:            uuid.New(),
			OrgID:         req.OrgID,
			LocationID:    loc.ID,
			UnitID:        unit.ID,
			Date:          req.Date,
			RenterName:    strings.TrimSpace(req.RenterName),
			RenterContact: strings.TrimSpace(req.RenterContact),
			Status:        StatusBooked,
			PriceCents:    loc.PriceCents,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return tx.RecordEvent(ctx, req.OrgID, events.TypeDayRateBooked, a.bookingEvent(*b))
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("day-rate unit booked", "org_id", req.OrgID, "location_id", req.LocationID, "unit_id", booking.UnitID, "date", booking.Date)
	return booking, nil
}

// Cancel releases a booking. The row is kept with status cancelled.
func (a *Allocator) Cancel(ctx context.Context, orgID string, bookingID uuid.UUID) (*Booking, error) {
	ctx, span := allocatorTracer.Start(ctx, "dayrate.cancel")
	defer span.End()

	var cancelled Booking
	err := a.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, orgID, bookingID)
		if err != nil {
			return err
		}
		if b.Status == StatusCancelled {
			return appointments.ErrAlreadyCancelled
		}
		if err := tx.UpdateBookingStatus(ctx, orgID, bookingID, StatusCancelled); err != nil {
			return err
		}
		cancelled = *b
		cancelled.Status = StatusCancelled
		return tx.RecordEvent(ctx, orgID, events.TypeDayRateCancelled, a.bookingEvent(cancelled))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	a.logger.Info("day-rate booking cancelled", "org_id", orgID, "booking_id", bookingID)
	return &cancelled, nil
}

// AddBlackout closes a date. Existing bookings on it are left in place.
func (a *Allocator) AddBlackout(ctx context.Context, orgID string, locationID uuid.UUID, date calendar.Date, reason string) (Blackout, error) {
	if date.IsZero() {
		return Blackout{}, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	b := Blackout{LocationID: locationID, Date: date, Reason: strings.TrimSpace(reason)}
	err := a.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockLocation(ctx, orgID, locationID); err != nil {
			return err
		}
		return tx.UpsertBlackout(ctx, b)
	})
	if err != nil {
		return Blackout{}, err
	}
	a.logger.Info("day-rate blackout added", "org_id", orgID, "location_id", locationID, "date", date)
	return b, nil
}

// RemoveBlackout reopens a date.
func (a *Allocator) RemoveBlackout(ctx context.Context, orgID string, locationID uuid.UUID, date calendar.Date) error {
	return a.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockLocation(ctx, orgID, locationID); err != nil {
			return err
		}
		removed, err := tx.DeleteBlackout(ctx, locationID, date)
		if err != nil {
			return err
		}
		if !removed {
			return appointments.ErrNotFound
		}
		return nil
	})
}

// GetBooking loads one booking.
func (a *Allocator) GetBooking(ctx context.Context, orgID string, id uuid.UUID) (*Booking, error) {
	return a.store.GetBooking(ctx, orgID, id)
}

func (a *Allocator) offered(ctx context.Context, orgID string, locationID uuid.UUID) (*Location, error) {
	loc, err := a.store.GetLocation(ctx, orgID, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.DayRateEnabled {
		return nil, ErrNotOffered
	}
	return loc, nil
}

func (a *Allocator) bookingEvent(b Booking) events.DayRateBookingV1 {
	return events.DayRateBookingV1{
		EventID:    uuid.NewString(),
		OrgID:      b.OrgID,
		BookingID:  b.ID.String(),
		LocationID: b.LocationID.String(),
		UnitID:     b.UnitID.String(),
		Date:       b.Date.String(),
		Status:     string(b.Status),
		OccurredAt: a.now().UTC(),
	}
}

func activeCount(units []Unit) int {
	n := 0
	for _, u := range units {
		if u.Active {
			n++
		}
	}
	return n
}

func firstFree(units []Unit, taken []uuid.UUID) (Unit, bool) {
	used := make(map[uuid.UUID]struct{}, len(taken))
	for _, id := range taken {
		used[id] = struct{}{}
	}
	for _, u := range units {
		if !u.Active {
			continue
		}
		if _, busy := used[u.ID]; !busy {
			return u, true
		}
	}
	return Unit{}, false
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrCapacityExhausted):
		return "capacity_exhausted"
	case errors.Is(err, ErrDateUnavailable):
		return "date_unavailable"
	case errors.Is(err, ErrNotOffered):
		return "not_offered"
	case errors.Is(err, appointments.ErrNotFound):
		return "not_found"
	}
	return "error"
}
