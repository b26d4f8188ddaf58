package possync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/wolfman30/salon-scheduler/internal/observability/metrics"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

var gateTracer = otel.Tracer("salon.internal.possync.gate")

// ErrRateLimited is reported when a tenant exceeds its outbound POS budget.
var ErrRateLimited = errors.New("possync: outbound rate limit exceeded")

const defaultTimeout = 10 * time.Second

// Gate mirrors committed local mutations to the POS when the tenant allows it.
// Propagate never fails the caller: the local change is already durable.
type Gate struct {
	settings  SettingsSource
	client    POSClient
	staff     StaffMapper
	ids       ExternalIDWriter
	recorders []FailureRecorder
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	timeout   time.Duration
	now       func() time.Time

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

// NewGate builds a gate. A nil client leaves every tenant local-only.
func NewGate(settings SettingsSource, client POSClient, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{
		settings: settings,
		client:   client,
		logger:   logger,
		timeout:  defaultTimeout,
		now:      func() time.Time { return time.Now().UTC() },
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Inf,
	}
}

// WithStaffMapper resolves internal staff ids to POS staff ids.
func (g *Gate) WithStaffMapper(m StaffMapper) *Gate {
	g.staff = m
	return g
}

// WithExternalIDWriter stores the POS id returned by a remote create.
func (g *Gate) WithExternalIDWriter(w ExternalIDWriter) *Gate {
	g.ids = w
	return g
}

// WithFailureRecorder adds a sink for failed remote writes. Nil is ignored.
func (g *Gate) WithFailureRecorder(r FailureRecorder) *Gate {
	if r != nil {
		g.recorders = append(g.recorders, r)
	}
	return g
}

// WithMetrics attaches sync metrics. Nil is allowed.
func (g *Gate) WithMetrics(m *metrics.SchedulingMetrics) *Gate {
	g.metrics = m
	return g
}

// WithTimeout bounds each remote call. Non-positive values are ignored.
func (g *Gate) WithTimeout(d time.Duration) *Gate {
	if d > 0 {
		g.timeout = d
	}
	return g
}

// WithRateLimit caps remote writes per tenant. perSecond <= 0 disables the cap.
func (g *Gate) WithRateLimit(perSecond float64, burst int) *Gate {
	g.limitMu.Lock()
	defer g.limitMu.Unlock()
	if perSecond <= 0 {
		g.perSec = rate.Inf
	} else {
		g.perSec = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	g.burst = burst
	g.limiters = make(map[string]*rate.Limiter)
	return g
}

func (g *Gate) limiter(orgID string) *rate.Limiter {
	g.limitMu.Lock()
	defer g.limitMu.Unlock()
	l, ok := g.limiters[orgID]
	if !ok {
		l = rate.NewLimiter(g.perSec, g.burst)
		g.limiters[orgID] = l
	}
	return l
}

// Propagate pushes m to the POS if the tenant's policy allows it.
func (g *Gate) Propagate(ctx context.Context, m Mutation) Outcome {
	ctx, span := gateTracer.Start(ctx, "possync.propagate")
	defer span.End()
	span.SetAttributes(
		attribute.String("org_id", m.OrgID),
		attribute.String("mutation.kind", string(m.Kind)),
		attribute.String("appointment_id", m.Appointment.ID.String()),
	)
	logger := g.logger.WithOrg(m.OrgID).With("kind", string(m.Kind), "appointment_id", m.Appointment.ID)

	if g.settings == nil {
		return g.skip(m, SkipWriteDisabled)
	}
	settings, err := g.settings.Get(ctx, m.OrgID)
	if err != nil {
		logger.Warn("sync settings unavailable, keeping change local", "error", err)
		span.RecordError(err)
		return g.skip(m, SkipSettingsUnavailable)
	}
	if !settings.WriteEnabled {
		return g.skip(m, SkipWriteDisabled)
	}
	if g.client == nil {
		return g.skip(m, SkipPOSNotConfigured)
	}
	if m.Kind != KindCreate && m.Appointment.ExternalID == "" {
		return g.skip(m, SkipNotMirrored)
	}

	out := Outcome{Attempted: true, ExternalID: m.Appointment.ExternalID}
	if !g.limiter(m.OrgID).Allow() {
		return g.fail(ctx, logger, m, out, ErrRateLimited, 0)
	}

	remote, warnings := g.remoteView(ctx, logger, m, settings)
	out.Warnings = warnings

	// The local transaction has committed; caller cancellation must not
	// abort the remote write halfway, the timeout bounds it instead.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	started := time.Now()
	switch m.Kind {
	case KindCreate:
		var externalID string
		externalID, err = g.client.CreateAppointment(callCtx, remote)
		if err == nil {
			out.ExternalID = externalID
			if g.ids != nil && externalID != "" {
				if werr := g.ids.SetExternalID(callCtx, m.OrgID, m.Appointment.ID, externalID); werr != nil {
					logger.Warn("failed to store external id", "external_id", externalID, "error", werr)
					out.Warnings = append(out.Warnings, "external id not stored locally: "+werr.Error())
				}
			}
		}
	case KindReschedule:
		err = g.client.UpdateAppointment(callCtx, remote)
	case KindCancel:
		err = g.client.CancelAppointment(callCtx, remote.BranchID, remote.ExternalID)
	default:
		err = fmt.Errorf("possync: unknown mutation kind %q", m.Kind)
	}
	elapsed := time.Since(started).Seconds()
	if err != nil {
		return g.fail(ctx, logger, m, out, err, elapsed)
	}

	out.AppliedRemotely = true
	g.metrics.ObserveSync(string(m.Kind), "applied", elapsed)
	logger.Info("appointment mirrored to POS", "external_id", out.ExternalID)
	return out
}

// remoteView builds the POS payload. A missing staff mapping does not block
// the push: the previous POS staff is kept and a warning is returned.
func (g *Gate) remoteView(ctx context.Context, logger *logging.Logger, m Mutation, settings Settings) (RemoteAppointment, []string) {
	a := m.Appointment
	loc := settings.Location()
	remote := RemoteAppointment{
		ExternalID: a.ExternalID,
		BranchID:   settings.BranchID,
		ClientID:   a.ClientID,
		ServiceID:  a.ServiceID,
		Start:      a.Start.On(a.Date, loc),
		End:        a.End.On(a.Date, loc),
		Notes:      a.Notes,
	}
	if m.Kind == KindCancel || !a.Assigned() || g.staff == nil {
		return remote, nil
	}

	var warnings []string
	ext, ok, err := g.staff.ExternalStaffID(ctx, m.OrgID, a.StaffID)
	if err != nil {
		logger.Warn("staff mapping lookup failed", "staff_id", a.StaffID, "error", err)
	}
	if ok {
		remote.ExternalStaffID = ext
		return remote, nil
	}

	if m.StaffChanged() {
		prev, prevOK, _ := g.staff.ExternalStaffID(ctx, m.OrgID, m.PreviousStaffID)
		if prevOK {
			remote.ExternalStaffID = prev
		}
		warnings = append(warnings, fmt.Sprintf("no POS staff mapping for %s; POS keeps the previous staff member", a.StaffID))
	} else {
		warnings = append(warnings, fmt.Sprintf("no POS staff mapping for %s; POS staff left unchanged", a.StaffID))
	}
	logger.Warn("missing POS staff mapping", "staff_id", a.StaffID, "previous_staff_id", m.PreviousStaffID)
	return remote, warnings
}

func (g *Gate) skip(m Mutation, reason string) Outcome {
	g.metrics.ObserveSync(string(m.Kind), reason, 0)
	return Outcome{SkippedReason: reason, ExternalID: m.Appointment.ExternalID}
}

func (g *Gate) fail(ctx context.Context, logger *logging.Logger, m Mutation, out Outcome, err error, elapsed float64) Outcome {
	result := "failed"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case errors.Is(err, ErrRateLimited):
		result = "rate_limited"
	}
	out.AppliedRemotely = false
	out.Error = err.Error()

	g.metrics.ObserveSync(string(m.Kind), result, elapsed)
	logger.Warn("POS propagation failed, local change kept", "result", result, "error", err)
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, result)

	failure := Failure{
		OrgID:         m.OrgID,
		Kind:          m.Kind,
		AppointmentID: m.Appointment.ID,
		Reason:        err.Error(),
		OccurredAt:    g.now(),
	}
	recordCtx := context.WithoutCancel(ctx)
	for _, r := range g.recorders {
		if rerr := r.RecordSyncFailure(recordCtx, failure); rerr != nil {
			logger.Error("failed to record sync failure", "error", rerr)
		}
	}
	return out
}
