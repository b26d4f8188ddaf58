package dayrate

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

// Reader serves availability reads outside a transaction.
type Reader interface {
	GetLocation(ctx context.Context, orgID string, locationID uuid.UUID) (*Location, error)
	ListUnits(ctx context.Context, locationID uuid.UUID) ([]Unit, error)
	// CountBooked returns non-cancelled bookings on active units per date in
	// [from, to]. Bookings on deactivated units no longer hold a seat.
	CountBooked(ctx context.Context, locationID uuid.UUID, from, to calendar.Date) (map[calendar.Date]int, error)
	ListBlackouts(ctx context.Context, locationID uuid.UUID, from, to calendar.Date) ([]Blackout, error)
}

// Store is the day-rate repository.
type Store interface {
	Reader
	GetBooking(ctx context.Context, orgID string, id uuid.UUID) (*Booking, error)
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a unit of work. LockLocation serialises all capacity writes for a
// location until the transaction ends.
type Tx interface {
	LockLocation(ctx context.Context, orgID string, locationID uuid.UUID) (*Location, error)
	ListUnits(ctx context.Context, locationID uuid.UUID) ([]Unit, error)
	BookedUnitIDs(ctx context.Context, locationID uuid.UUID, date calendar.Date) ([]uuid.UUID, error)
	GetBlackout(ctx context.Context, locationID uuid.UUID, date calendar.Date) (*Blackout, error)
	InsertBooking(ctx context.Context, b *Booking) error
	GetBookingForUpdate(ctx context.Context, orgID string, id uuid.UUID) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, orgID string, id uuid.UUID, status BookingStatus) error
	UpsertBlackout(ctx context.Context, b Blackout) error
	DeleteBlackout(ctx context.Context, locationID uuid.UUID, date calendar.Date) (bool, error)
	RecordEvent(ctx context.Context, orgID, eventType string, payload any) error
}
