package actions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Result is the terminal outcome written back to an action.
type Result struct {
	Message       string
	FailureReason string
}

// Store persists actions. Every status change is a compare-and-set against
// the expected current status; a false return means another writer won.
type Store interface {
	Insert(ctx context.Context, a Action) error
	Get(ctx context.Context, orgID string, id uuid.UUID) (*Action, error)
	ListByStatus(ctx context.Context, orgID string, statuses ...Status) ([]Action, error)
	// Decide moves a pending action to confirmed or cancelled.
	Decide(ctx context.Context, orgID string, id uuid.UUID, from, to Status, actor string, at time.Time) (bool, error)
	// ClaimExecution marks a confirmed action as running so only one
	// executor reaches the scheduling engine. A claim taken before
	// staleBefore counts as abandoned and is replaced.
	ClaimExecution(ctx context.Context, orgID string, id uuid.UUID, at, staleBefore time.Time) (bool, error)
	// Finish records the terminal status and emits the resolution event.
	Finish(ctx context.Context, orgID string, id uuid.UUID, to Status, res Result, at time.Time) (bool, error)
}
