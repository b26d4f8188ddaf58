package possync

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/events"
)

type outboxInserter interface {
	Insert(ctx context.Context, orgID string, eventType string, payload any) (uuid.UUID, error)
}

// OutboxRecorder turns sync failures into possync.failed events so the
// notification service can alert the salon.
type OutboxRecorder struct {
	outbox outboxInserter
}

// NewOutboxRecorder records sync failures as outbox events.
func NewOutboxRecorder(outbox outboxInserter) *OutboxRecorder {
	return &OutboxRecorder{outbox: outbox}
}

func (r *OutboxRecorder) RecordSyncFailure(ctx context.Context, f Failure) error {
	_, err := r.outbox.Insert(ctx, f.OrgID, events.TypeSyncFailed, events.SyncFailedV1{
		EventID:       uuid.NewString(),
		OrgID:         f.OrgID,
		AppointmentID: f.AppointmentID.String(),
		Mutation:      string(f.Kind),
		Reason:        f.Reason,
		OccurredAt:    f.OccurredAt,
	})
	return err
}
