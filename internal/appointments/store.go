package appointments

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

// DayReader lists the non-cancelled appointments a staff member holds on a date.
type DayReader interface {
	ListForDay(ctx context.Context, orgID, staffID string, date calendar.Date) ([]Appointment, error)
}

// Store is the appointment repository. Mutations go through WithTx so the
// conflict check and the write share one transaction.
type Store interface {
	DayReader
	Get(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error)
	ListGroup(ctx context.Context, orgID string, groupID uuid.UUID) ([]Appointment, error)
	SetExternalID(ctx context.Context, orgID string, id uuid.UUID, externalID string) error
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a scheduling transaction.
type Tx interface {
	DayReader

	// GetForUpdate loads the appointment and holds it for the rest of the transaction.
	GetForUpdate(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error)

	// LockSlot serialises writers targeting the same staff member and date.
	LockSlot(ctx context.Context, orgID, staffID string, date calendar.Date) error

	Insert(ctx context.Context, a *Appointment) error

	// UpdateSchedule persists date, start, end and staff.
	UpdateSchedule(ctx context.Context, a *Appointment) error

	UpdateStatus(ctx context.Context, orgID string, id uuid.UUID, status Status) error

	// TagRecurrence marks an appointment as a member of a series.
	TagRecurrence(ctx context.Context, orgID string, id uuid.UUID, groupID uuid.UUID, index int, rule *RecurrenceRule) error

	// RecordEvent appends an outbox event that commits with the transaction.
	RecordEvent(ctx context.Context, orgID, eventType string, payload any) error
}
