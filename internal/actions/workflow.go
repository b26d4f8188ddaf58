package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/observability/metrics"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

var workflowTracer = otel.Tracer("salon.internal.actions.workflow")

// Auditor records every state change of an action.
type Auditor interface {
	RecordAction(ctx context.Context, a Action) error
}

// ProposeRequest describes a change an assistant wants to make.
type ProposeRequest struct {
	OrgID      string
	Kind       Kind
	Params     Params
	ProposedBy string
}

// Workflow is the only path by which an automated agent changes a
// schedule: nothing runs until an operator confirms it.
type Workflow struct {
	store    Store
	executor Executor
	auditors []Auditor
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	now      func() time.Time

	claimLease     time.Duration
	finishAttempts int
	finishBackoff  time.Duration
}

const (
	defaultClaimLease     = 5 * time.Minute
	defaultFinishAttempts = 5
	defaultFinishBackoff  = 200 * time.Millisecond
)

// NewWorkflow builds the confirmation workflow around executor.
func NewWorkflow(store Store, executor Executor, logger *logging.Logger) *Workflow {
	if store == nil {
		panic("actions: store required")
	}
	if executor == nil {
		panic("actions: executor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Workflow{
		store:    store,
		executor: executor,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },

		claimLease:     defaultClaimLease,
		finishAttempts: defaultFinishAttempts,
		finishBackoff:  defaultFinishBackoff,
	}
}

// WithAuditor adds an audit sink. Nil is ignored.
func (w *Workflow) WithAuditor(a Auditor) *Workflow {
	if a != nil {
		w.auditors = append(w.auditors, a)
	}
	return w
}

// WithMetrics attaches transition metrics. Nil is allowed.
func (w *Workflow) WithMetrics(m *metrics.SchedulingMetrics) *Workflow {
	w.metrics = m
	return w
}

// WithClaimLease sets how long an execution claim blocks other executors.
// A claim older than the lease is abandoned and may be taken over.
func (w *Workflow) WithClaimLease(d time.Duration) *Workflow {
	if d > 0 {
		w.claimLease = d
	}
	return w
}

// Propose validates the change, computes its preview against the current
// schedule and stores it as pending_confirmation.
func (w *Workflow) Propose(ctx context.Context, req ProposeRequest) (*Action, error) {
	ctx, span := workflowTracer.Start(ctx, "actions.propose")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", req.OrgID), attribute.String("kind", string(req.Kind)))

	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, req.Kind)
	}
	if err := req.Params.Validate(req.Kind); err != nil {
		return nil, err
	}
	preview, err := w.executor.Preview(ctx, req.OrgID, req.Kind, req.Params)
	if err != nil {
		return nil, err
	}

	now := w.now()
	a := Action{
		ID:         uuid.New(),
		OrgID:      req.OrgID,
		Kind:       req.Kind,
		Params:     req.Params,
		Status:     StatusPendingConfirmation,
		Preview:    preview,
		ProposedBy: req.ProposedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := w.store.Insert(ctx, a); err != nil {
		return nil, err
	}
	w.record(ctx, a)
	w.logger.WithOrg(a.OrgID).Info("action proposed", "action_id", a.ID, "kind", a.Kind, "proposed_by", a.ProposedBy)
	return &a, nil
}

// Confirm approves a pending action. It does not run it.
func (w *Workflow) Confirm(ctx context.Context, orgID string, id uuid.UUID, actor string) (*Action, error) {
	return w.decide(ctx, orgID, id, EventConfirm, actor)
}

// Reject cancels a pending action; it will never run.
func (w *Workflow) Reject(ctx context.Context, orgID string, id uuid.UUID, actor string) (*Action, error) {
	return w.decide(ctx, orgID, id, EventReject, actor)
}

func (w *Workflow) decide(ctx context.Context, orgID string, id uuid.UUID, ev Event, actor string) (*Action, error) {
	ctx, span := workflowTracer.Start(ctx, "actions."+string(ev))
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID), attribute.String("action_id", id.String()))

	current, err := w.store.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	next, err := transition(current.Status, ev)
	if err != nil {
		return nil, err
	}
	ok, err := w.store.Decide(ctx, orgID, id, current.Status, next, actor, w.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: action changed concurrently", ErrInvalidActionState)
	}
	updated, err := w.store.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	w.record(ctx, *updated)
	w.logger.WithOrg(orgID).Info("action decided", "action_id", id, "status", updated.Status, "actor", actor)
	return updated, nil
}

// Execute runs a confirmed action exactly once. A scheduling failure is an
// outcome, not an error: the action moves to failed with the reason stored.
// The returned error covers only workflow and storage problems.
func (w *Workflow) Execute(ctx context.Context, orgID string, id uuid.UUID) (*Action, error) {
	ctx, span := workflowTracer.Start(ctx, "actions.execute")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID), attribute.String("action_id", id.String()))

	current, err := w.store.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if _, err := transition(current.Status, EventSucceed); err != nil {
		return nil, err
	}
	now := w.now()
	claimed, err := w.store.ClaimExecution(ctx, orgID, id, now, now.Add(-w.claimLease))
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: action is already executing", ErrInvalidActionState)
	}

	logger := w.logger.WithOrg(orgID).With("action_id", id, "kind", current.Kind)
	message, execErr := w.executor.Execute(ctx, *current)

	ev, res := EventSucceed, Result{Message: message}
	if execErr != nil {
		ev, res = EventFail, Result{FailureReason: execErr.Error()}
		span.RecordError(execErr)
	}
	next, err := transition(StatusConfirmed, ev)
	if err != nil {
		return nil, err
	}

	// The schedule change already happened or definitively failed; the
	// outcome is persisted even if the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	ok, err := w.finish(persistCtx, logger, orgID, id, next, res)
	if err != nil {
		logger.Error("failed to store action outcome", "status", next, "error", err)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: action changed concurrently", ErrInvalidActionState)
	}
	updated, err := w.store.Get(persistCtx, orgID, id)
	if err != nil {
		return nil, err
	}
	w.record(persistCtx, *updated)

	if execErr != nil {
		if appointments.IsRetryable(execErr) {
			logger.Error("action failed", "error", execErr)
		} else {
			logger.Warn("action failed", "error", execErr)
		}
	} else {
		logger.Info("action executed", "result", message)
	}
	return updated, nil
}

// finish persists the outcome, retrying storage errors with backoff. A
// persistent failure leaves the claim to expire after the lease.
func (w *Workflow) finish(ctx context.Context, logger *logging.Logger, orgID string, id uuid.UUID, to Status, res Result) (bool, error) {
	backoff := w.finishBackoff
	for attempt := 1; ; attempt++ {
		ok, err := w.store.Finish(ctx, orgID, id, to, res, w.now())
		if err == nil {
			return ok, nil
		}
		if !appointments.IsRetryable(err) || attempt >= w.finishAttempts {
			return false, err
		}
		logger.Warn("storing action outcome failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		time.Sleep(backoff)
		backoff *= 2
	}
}

// Get loads one action.
func (w *Workflow) Get(ctx context.Context, orgID string, id uuid.UUID) (*Action, error) {
	return w.store.Get(ctx, orgID, id)
}

// ListPending returns actions still awaiting a decision or execution.
func (w *Workflow) ListPending(ctx context.Context, orgID string) ([]Action, error) {
	return w.store.ListByStatus(ctx, orgID, StatusPendingConfirmation, StatusConfirmed)
}

// List returns actions in any of statuses, or all of them when none given.
func (w *Workflow) List(ctx context.Context, orgID string, statuses ...Status) ([]Action, error) {
	return w.store.ListByStatus(ctx, orgID, statuses...)
}

func (w *Workflow) record(ctx context.Context, a Action) {
	w.metrics.ObserveActionTransition(string(a.Kind), string(a.Status))
	for _, au := range w.auditors {
		if err := au.RecordAction(ctx, a); err != nil {
			w.logger.WithOrg(a.OrgID).Error("failed to audit action", "action_id", a.ID, "error", err)
		}
	}
}
