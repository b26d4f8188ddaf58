package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
	"github.com/wolfman30/salon-scheduler/internal/events"
	"github.com/wolfman30/salon-scheduler/internal/observability/metrics"
	"github.com/wolfman30/salon-scheduler/internal/possync"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

var engineTracer = otel.Tracer("salon.internal.scheduling.engine")

// Propagator mirrors committed mutations outward. It must not fail the caller.
type Propagator interface {
	Propagate(ctx context.Context, m possync.Mutation) possync.Outcome
}

// NewAppointment is a request to book a single appointment, optionally as
// the anchor of a recurring series.
type NewAppointment struct {
	OrgID          string
	StaffID        string
	ClientID       string
	ClientName     string
	ServiceID      string
	ServiceName    string
	LocationID     string
	Date           calendar.Date
	Start          calendar.Clock
	End            calendar.Clock
	PriceCents     int
	Notes          string
	RecurrenceRule *appointments.RecurrenceRule
}

// RescheduleRequest moves an appointment. NewStaffID nil keeps the current
// staff member; a pointer to "" unassigns it.
type RescheduleRequest struct {
	OrgID         string
	AppointmentID uuid.UUID
	NewDate       calendar.Date
	NewStart      calendar.Clock
	NewStaffID    *string
}

// LocalResult is the authoritative, committed half of an operation.
type LocalResult struct {
	Appointment  appointments.Appointment   `json:"appointment"`
	Previous     *appointments.Appointment  `json:"previous,omitempty"`
	GroupID      *uuid.UUID                 `json:"recurrence_group_id,omitempty"`
	CreatedCount int                        `json:"created_count,omitempty"`
	Created      []appointments.Appointment `json:"created,omitempty"`
	Skipped      []SkippedDate              `json:"skipped,omitempty"`
}

// Outcome pairs the committed local result with the remote sync result,
// attached only after the local transaction finished. Series instances
// beyond the anchor are mirrored in the background and only counted here.
type Outcome struct {
	Local         LocalResult      `json:"local"`
	Remote        *possync.Outcome `json:"remote,omitempty"`
	SeriesPending int              `json:"series_remote_pending,omitempty"`
}

// AppliedRemotely reports whether the primary appointment reached the POS.
func (o Outcome) AppliedRemotely() bool {
	return o.Remote != nil && o.Remote.AppliedRemotely
}

// Engine applies scheduling mutations: conflict check and write share one
// storage transaction, then the change is handed to the sync gate.
type Engine struct {
	store   appointments.Store
	sync    Propagator
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
	now     func() time.Time

	background sync.WaitGroup
}

// NewEngine wires the engine. A nil propagator keeps every change local.
func NewEngine(store appointments.Store, sync Propagator, logger *logging.Logger) *Engine {
	if store == nil {
		panic("scheduling: appointment store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:  store,
		sync:   sync,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches operation metrics. Nil is allowed.
func (e *Engine) WithMetrics(m *metrics.SchedulingMetrics) *Engine {
	e.metrics = m
	return e
}

// Get loads one appointment.
func (e *Engine) Get(ctx context.Context, orgID string, id uuid.UUID) (*appointments.Appointment, error) {
	return e.store.Get(ctx, orgID, id)
}

// CheckConflict returns the booking blocking slot, if any.
func (e *Engine) CheckConflict(ctx context.Context, slot Slot) (*appointments.Appointment, error) {
	if err := appointments.ValidateTimes(slot.Start, slot.End); err != nil {
		return nil, err
	}
	return FindConflict(ctx, e.store, slot)
}

// Create books a single appointment. With a recurrence rule the new
// appointment becomes the anchor and the series is expanded in the same
// transaction.
func (e *Engine) Create(ctx context.Context, req NewAppointment) (outcome Outcome, err error) {
	ctx, span := engineTracer.Start(ctx, "scheduling.create")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", req.OrgID), attribute.String("staff_id", req.StaffID))
	defer e.observe(span, "create", time.Now(), &err)

	if req.OrgID == "" || req.ClientID == "" {
		return Outcome{}, fmt.Errorf("%w: org and client are required", ErrInvalidRequest)
	}
	if req.Date.IsZero() {
		return Outcome{}, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if err := appointments.ValidateTimes(req.Start, req.End); err != nil {
		return Outcome{}, err
	}
	if req.RecurrenceRule != nil {
		if err := req.RecurrenceRule.Validate(); err != nil {
			return Outcome{}, err
		}
	}

	anchor := appointments.Appointment{
		ID:          uuid.New(),
		OrgID:       req.OrgID,
		StaffID:     req.StaffID,
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		ServiceID:   req.ServiceID,
		ServiceName: req.ServiceName,
		LocationID:  req.LocationID,
		Date:        req.Date,
		Start:       req.Start,
		End:         req.End,
		Status:      appointments.StatusBooked,
		PriceCents:  req.PriceCents,
		Notes:       req.Notes,
	}
	var expansion *Expansion
	if req.RecurrenceRule != nil {
		groupID := uuid.New()
		zero := 0
		rule := *req.RecurrenceRule
		anchor.RecurrenceRule = &rule
		anchor.RecurrenceGroupID = &groupID
		anchor.RecurrenceIndex = &zero
	}

	err = e.store.WithTx(ctx, func(tx appointments.Tx) error {
		placed, conflict, err := e.place(ctx, tx, anchor)
		if err != nil {
			return err
		}
		if conflict != nil {
			return appointments.NewConflictError(*conflict)
		}
		anchor = placed
		if err := tx.RecordEvent(ctx, anchor.OrgID, events.TypeAppointmentCreated, e.changedEvent(anchor, nil)); err != nil {
			return err
		}
		if anchor.RecurrenceRule == nil {
			return nil
		}
		exp, err := e.expandIn(ctx, tx, anchor, *anchor.RecurrenceRule)
		if err != nil {
			return err
		}
		expansion = &exp
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	outcome.Local = LocalResult{Appointment: anchor, CreatedCount: 1}
	if expansion != nil {
		e.applyExpansion(&outcome.Local, *expansion)
	}
	e.logger.Info("appointment created", "org_id", anchor.OrgID, "appointment_id", anchor.ID, "created_count", outcome.Local.CreatedCount, "skipped", len(outcome.Local.Skipped))

	remote := e.propagate(ctx, possync.Mutation{Kind: possync.KindCreate, OrgID: anchor.OrgID, Appointment: anchor})
	outcome.Remote = remote
	if remote != nil && remote.ExternalID != "" {
		outcome.Local.Appointment.ExternalID = remote.ExternalID
	}
	outcome.SeriesPending = e.propagateSeries(ctx, outcome.Local.Created)
	return outcome, nil
}

// ExpandRecurrence turns an existing appointment into the anchor of a new
// series. Conflicting dates are skipped and reported, never fatal.
func (e *Engine) ExpandRecurrence(ctx context.Context, orgID string, anchorID uuid.UUID, rule appointments.RecurrenceRule) (outcome Outcome, err error) {
	ctx, span := engineTracer.Start(ctx, "scheduling.expand_recurrence")
	defer span.End()
	span.SetAttributes(
		attribute.String("org_id", orgID),
		attribute.String("appointment_id", anchorID.String()),
		attribute.String("frequency", string(rule.Frequency)),
		attribute.Int("occurrences", rule.Occurrences),
	)
	defer e.observe(span, "expand", time.Now(), &err)

	if err := rule.Validate(); err != nil {
		return Outcome{}, err
	}

	var anchor appointments.Appointment
	var expansion Expansion
	err = e.store.WithTx(ctx, func(tx appointments.Tx) error {
		current, err := tx.GetForUpdate(ctx, orgID, anchorID)
		if err != nil {
			return err
		}
		if current.Cancelled() {
			return appointments.ErrAlreadyCancelled
		}
		if current.InSeries() {
			return fmt.Errorf("%w: appointment already belongs to recurrence group %s", appointments.ErrInvalidRecurrenceRule, *current.RecurrenceGroupID)
		}
		groupID := uuid.New()
		if err := tx.TagRecurrence(ctx, orgID, current.ID, groupID, 0, &rule); err != nil {
			return err
		}
		zero := 0
		r := rule
		current.RecurrenceGroupID = &groupID
		current.RecurrenceIndex = &zero
		current.RecurrenceRule = &r
		anchor = *current

		expansion, err = e.expandIn(ctx, tx, anchor, rule)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	outcome.Local = LocalResult{Appointment: anchor}
	e.applyExpansion(&outcome.Local, expansion)
	e.logger.Info("recurrence expanded", "org_id", orgID, "appointment_id", anchorID, "created_count", outcome.Local.CreatedCount, "skipped", len(outcome.Local.Skipped))

	outcome.SeriesPending = e.propagateSeries(ctx, outcome.Local.Created)
	return outcome, nil
}

// Reschedule moves an appointment, preserving its duration exactly. On
// conflict the appointment is left untouched.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (outcome Outcome, err error) {
	ctx, span := engineTracer.Start(ctx, "scheduling.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", req.OrgID), attribute.String("appointment_id", req.AppointmentID.String()))
	defer e.observe(span, "reschedule", time.Now(), &err)

	if req.NewDate.IsZero() {
		return Outcome{}, fmt.Errorf("%w: new date is required", ErrInvalidRequest)
	}
	if !req.NewStart.ValidStart() {
		return Outcome{}, fmt.Errorf("%w: start %s is outside the day", appointments.ErrInvalidTimeRange, req.NewStart)
	}

	var previous, updated appointments.Appointment
	err = e.store.WithTx(ctx, func(tx appointments.Tx) error {
		current, err := tx.GetForUpdate(ctx, req.OrgID, req.AppointmentID)
		if err != nil {
			return err
		}
		if current.Cancelled() {
			return appointments.ErrAlreadyCancelled
		}
		previous = current.Clone()

		next := current.Clone()
		next.Date = req.NewDate
		next.Start = req.NewStart
		next.End = req.NewStart.Add(current.Duration())
		if req.NewStaffID != nil {
			next.StaffID = *req.NewStaffID
		}
		if err := appointments.ValidateTimes(next.Start, next.End); err != nil {
			return fmt.Errorf("%w: a %s appointment cannot start at %s", appointments.ErrInvalidTimeRange, current.Duration(), req.NewStart)
		}

		if next.Assigned() {
			if err := tx.LockSlot(ctx, next.OrgID, next.StaffID, next.Date); err != nil {
				return err
			}
			slot := SlotOf(next)
			slot.Exclude = next.ID
			conflict, err := FindConflict(ctx, tx, slot)
			if err != nil {
				return err
			}
			if conflict != nil {
				return appointments.NewConflictError(*conflict)
			}
		}
		if err := tx.UpdateSchedule(ctx, &next); err != nil {
			return err
		}
		updated = next
		return tx.RecordEvent(ctx, next.OrgID, events.TypeAppointmentRescheduled, e.changedEvent(next, &previous))
	})
	if err != nil {
		return Outcome{}, err
	}

	e.logger.Info("appointment rescheduled", "org_id", req.OrgID, "appointment_id", req.AppointmentID,
		"from", fmt.Sprintf("%s %s", previous.Date, previous.Start), "to", fmt.Sprintf("%s %s", updated.Date, updated.Start))

	outcome.Local = LocalResult{Appointment: updated, Previous: &previous}
	outcome.Remote = e.propagate(ctx, possync.Mutation{
		Kind:            possync.KindReschedule,
		OrgID:           updated.OrgID,
		Appointment:     updated,
		PreviousStaffID: previous.StaffID,
	})
	return outcome, nil
}

// Cancel marks an appointment cancelled. The row is kept for history.
func (e *Engine) Cancel(ctx context.Context, orgID string, id uuid.UUID) (outcome Outcome, err error) {
	ctx, span := engineTracer.Start(ctx, "scheduling.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID), attribute.String("appointment_id", id.String()))
	defer e.observe(span, "cancel", time.Now(), &err)

	var cancelled appointments.Appointment
	err = e.store.WithTx(ctx, func(tx appointments.Tx) error {
		current, err := tx.GetForUpdate(ctx, orgID, id)
		if err != nil {
			return err
		}
		if current.Cancelled() {
			return appointments.ErrAlreadyCancelled
		}
		if err := tx.UpdateStatus(ctx, orgID, id, appointments.StatusCancelled); err != nil {
			return err
		}
		cancelled = current.Clone()
		cancelled.Status = appointments.StatusCancelled
		return tx.RecordEvent(ctx, orgID, events.TypeAppointmentCancelled, e.changedEvent(cancelled, nil))
	})
	if err != nil {
		return Outcome{}, err
	}

	e.logger.Info("appointment cancelled", "org_id", orgID, "appointment_id", id)
	outcome.Local = LocalResult{Appointment: cancelled}
	outcome.Remote = e.propagate(ctx, possync.Mutation{Kind: possync.KindCancel, OrgID: orgID, Appointment: cancelled})
	return outcome, nil
}

// place conflict-checks and inserts candidate inside tx.
func (e *Engine) place(ctx context.Context, tx appointments.Tx, candidate appointments.Appointment) (appointments.Appointment, *appointments.Appointment, error) {
	if candidate.Assigned() {
		if err := tx.LockSlot(ctx, candidate.OrgID, candidate.StaffID, candidate.Date); err != nil {
			return appointments.Appointment{}, nil, err
		}
		conflict, err := FindConflict(ctx, tx, SlotOf(candidate))
		if err != nil {
			return appointments.Appointment{}, nil, err
		}
		if conflict != nil {
			return appointments.Appointment{}, conflict, nil
		}
	}
	if err := tx.Insert(ctx, &candidate); err != nil {
		return appointments.Appointment{}, nil, err
	}
	return candidate, nil, nil
}

func (e *Engine) expandIn(ctx context.Context, tx appointments.Tx, anchor appointments.Appointment, rule appointments.RecurrenceRule) (Expansion, error) {
	exp, err := Expand(ctx, anchor, rule, *anchor.RecurrenceGroupID, func(ctx context.Context, c appointments.Appointment) (appointments.Appointment, *appointments.Appointment, error) {
		return e.place(ctx, tx, c)
	})
	if err != nil {
		return Expansion{}, err
	}
	skipped := make([]string, 0, len(exp.skipped))
	for _, s := range exp.skipped {
		skipped = append(skipped, s.Date.String())
	}
	payload := events.SeriesCreatedV1{
		EventID:      uuid.NewString(),
		OrgID:        anchor.OrgID,
		GroupID:      exp.groupID.String(),
		AnchorID:     anchor.ID.String(),
		Frequency:    string(rule.Frequency),
		CreatedCount: exp.CreatedCount(),
		SkippedDates: skipped,
		OccurredAt:   e.now(),
	}
	if err := tx.RecordEvent(ctx, anchor.OrgID, events.TypeSeriesCreated, payload); err != nil {
		return Expansion{}, err
	}
	return exp, nil
}

func (e *Engine) applyExpansion(local *LocalResult, exp Expansion) {
	g := exp.GroupID()
	local.GroupID = &g
	local.CreatedCount = exp.CreatedCount()
	local.Created = exp.Created()
	local.Skipped = exp.Skipped()
	e.metrics.ObserveRecurrenceSkipped(len(local.Skipped))
}

func (e *Engine) propagate(ctx context.Context, m possync.Mutation) *possync.Outcome {
	if e.sync == nil {
		return nil
	}
	out := e.sync.Propagate(ctx, m)
	return &out
}

// propagateSeries mirrors series instances in the background and returns how
// many were handed off. Each push is bounded by the gate's own timeout.
func (e *Engine) propagateSeries(ctx context.Context, created []appointments.Appointment) int {
	if e.sync == nil || len(created) == 0 {
		return 0
	}
	instances := append([]appointments.Appointment(nil), created...)
	bg := context.WithoutCancel(ctx)
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		failed := 0
		for _, a := range instances {
			out := e.sync.Propagate(bg, possync.Mutation{Kind: possync.KindCreate, OrgID: a.OrgID, Appointment: a})
			if out.Failed() {
				failed++
			}
		}
		e.logger.Info("series propagation finished", "org_id", instances[0].OrgID, "instances", len(instances), "failed", failed)
	}()
	return len(instances)
}

// Drain waits for background series propagation to finish or ctx to end.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) changedEvent(a appointments.Appointment, previous *appointments.Appointment) events.AppointmentChangedV1 {
	evt := events.AppointmentChangedV1{
		EventID:       uuid.NewString(),
		OrgID:         a.OrgID,
		AppointmentID: a.ID.String(),
		StaffID:       a.StaffID,
		ClientID:      a.ClientID,
		Date:          a.Date.String(),
		StartTime:     a.Start.String(),
		EndTime:       a.End.String(),
		Status:        string(a.Status),
		OccurredAt:    e.now(),
	}
	if previous != nil {
		evt.PreviousDate = previous.Date.String()
		evt.PreviousStart = previous.Start.String()
		evt.PreviousStaff = previous.StaffID
	}
	return evt
}

func (e *Engine) observe(span trace.Span, operation string, started time.Time, errp *error) {
	err := *errp
	if err != nil {
		span.RecordError(err)
	}
	e.metrics.ObserveOperation(operation, OutcomeLabel(err), time.Since(started).Seconds())
}

// ErrInvalidRequest marks malformed caller input.
var ErrInvalidRequest = errors.New("invalid request")

// OutcomeLabel classifies err for metrics and logs.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, appointments.ErrSchedulingConflict):
		return "conflict"
	case errors.Is(err, appointments.ErrNotFound):
		return "not_found"
	case errors.Is(err, appointments.ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, appointments.ErrInvalidRecurrenceRule),
		errors.Is(err, appointments.ErrInvalidTimeRange),
		errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, appointments.ErrStorage):
		return "storage_error"
	}
	return "error"
}
