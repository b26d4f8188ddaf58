package possync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

type staticSettings map[string]Settings

func (s staticSettings) Get(ctx context.Context, orgID string) (Settings, error) {
	return s[orgID], nil
}

type brokenSettings struct{}

func (brokenSettings) Get(ctx context.Context, orgID string) (Settings, error) {
	return Settings{}, errors.New("redis down")
}

type fakePOS struct {
	mu        sync.Mutex
	created   []RemoteAppointment
	updated   []RemoteAppointment
	cancelled []string
	err       error
	delay     time.Duration
}

func (f *fakePOS) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakePOS) CreateAppointment(ctx context.Context, appt RemoteAppointment) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, appt)
	return "ph-appt-1", nil
}

func (f *fakePOS) UpdateAppointment(ctx context.Context, appt RemoteAppointment) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updated = append(f.updated, appt)
	return nil
}

func (f *fakePOS) CancelAppointment(ctx context.Context, branchID, externalID string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, externalID)
	return nil
}

type mapStaff map[string]string

func (m mapStaff) ExternalStaffID(ctx context.Context, orgID, staffID string) (string, bool, error) {
	ext, ok := m[staffID]
	return ext, ok, nil
}

type idRecorder struct {
	ids map[uuid.UUID]string
}

func (r *idRecorder) SetExternalID(ctx context.Context, orgID string, id uuid.UUID, externalID string) error {
	r.ids[id] = externalID
	return nil
}

type failureLog struct {
	failures []Failure
}

func (l *failureLog) RecordSyncFailure(ctx context.Context, f Failure) error {
	l.failures = append(l.failures, f)
	return nil
}

func testAppointment() appointments.Appointment {
	return appointments.Appointment{
		ID:         uuid.New(),
		OrgID:      "org-1",
		StaffID:    "staff-1",
		ClientID:   "client-1",
		ServiceID:  "svc-1",
		Date:       calendar.NewDate(2025, time.March, 10),
		Start:      calendar.NewClock(9, 0),
		End:        calendar.NewClock(10, 0),
		Status:     appointments.StatusBooked,
		ExternalID: "ph-appt-1",
	}
}

var enabled = staticSettings{"org-1": {OrgID: "org-1", WriteEnabled: true, BranchID: "br-1"}}

func TestGateWriteDisabledStaysLocal(t *testing.T) {
	pos := &fakePOS{}
	gate := NewGate(staticSettings{"org-1": {OrgID: "org-1"}}, pos, nil)

	out := gate.Propagate(context.Background(), Mutation{Kind: KindReschedule, OrgID: "org-1", Appointment: testAppointment()})

	assert.False(t, out.Attempted)
	assert.False(t, out.AppliedRemotely)
	assert.Equal(t, SkipWriteDisabled, out.SkippedReason)
	assert.Empty(t, pos.updated)
}

func TestGateSettingsErrorIsAbsorbed(t *testing.T) {
	gate := NewGate(brokenSettings{}, &fakePOS{}, nil)
	out := gate.Propagate(context.Background(), Mutation{Kind: KindCancel, OrgID: "org-1", Appointment: testAppointment()})
	assert.False(t, out.AppliedRemotely)
	assert.Equal(t, SkipSettingsUnavailable, out.SkippedReason)
}

func TestGateCreateStoresExternalID(t *testing.T) {
	pos := &fakePOS{}
	ids := &idRecorder{ids: map[uuid.UUID]string{}}
	gate := NewGate(enabled, pos, nil).
		WithStaffMapper(mapStaff{"staff-1": "ph-staff-1"}).
		WithExternalIDWriter(ids)

	appt := testAppointment()
	appt.ExternalID = ""
	out := gate.Propagate(context.Background(), Mutation{Kind: KindCreate, OrgID: "org-1", Appointment: appt})

	require.True(t, out.AppliedRemotely)
	assert.Equal(t, "ph-appt-1", out.ExternalID)
	assert.Equal(t, "ph-appt-1", ids.ids[appt.ID])
	require.Len(t, pos.created, 1)
	assert.Equal(t, "ph-staff-1", pos.created[0].ExternalStaffID)
	assert.Equal(t, "br-1", pos.created[0].BranchID)
	assert.Equal(t, time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC), pos.created[0].Start)
}

func TestGateSkipsUnmirroredUpdates(t *testing.T) {
	pos := &fakePOS{}
	gate := NewGate(enabled, pos, nil)
	appt := testAppointment()
	appt.ExternalID = ""

	out := gate.Propagate(context.Background(), Mutation{Kind: KindCancel, OrgID: "org-1", Appointment: appt})
	assert.Equal(t, SkipNotMirrored, out.SkippedReason)
	assert.Empty(t, pos.cancelled)
}

func TestGateRemoteFailureIsAbsorbedAndRecorded(t *testing.T) {
	pos := &fakePOS{err: errors.New("phorest: 409 conflict")}
	failures := &failureLog{}
	gate := NewGate(enabled, pos, nil).WithFailureRecorder(failures)

	out := gate.Propagate(context.Background(), Mutation{Kind: KindCancel, OrgID: "org-1", Appointment: testAppointment()})

	assert.True(t, out.Attempted)
	assert.False(t, out.AppliedRemotely)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Error, "409")
	require.Len(t, failures.failures, 1)
	assert.Equal(t, KindCancel, failures.failures[0].Kind)
}

func TestGateTimeoutTreatedAsFailure(t *testing.T) {
	pos := &fakePOS{delay: time.Second}
	gate := NewGate(enabled, pos, nil).WithTimeout(20 * time.Millisecond)

	started := time.Now()
	out := gate.Propagate(context.Background(), Mutation{Kind: KindReschedule, OrgID: "org-1", Appointment: testAppointment()})

	assert.Less(t, time.Since(started), 500*time.Millisecond)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Error, context.DeadlineExceeded.Error())
}

func TestGateRateLimitCountsAsFailure(t *testing.T) {
	pos := &fakePOS{}
	gate := NewGate(enabled, pos, nil).WithRateLimit(0.001, 1)
	m := Mutation{Kind: KindReschedule, OrgID: "org-1", Appointment: testAppointment()}

	first := gate.Propagate(context.Background(), m)
	second := gate.Propagate(context.Background(), m)

	assert.True(t, first.AppliedRemotely)
	assert.True(t, second.Failed())
	assert.Equal(t, ErrRateLimited.Error(), second.Error)
	assert.Len(t, pos.updated, 1)
}

func TestGateMissingStaffMappingKeepsPreviousStaff(t *testing.T) {
	pos := &fakePOS{}
	gate := NewGate(enabled, pos, nil).WithStaffMapper(mapStaff{"staff-1": "ph-staff-1"})

	appt := testAppointment()
	appt.StaffID = "staff-new"
	out := gate.Propagate(context.Background(), Mutation{Kind: KindReschedule, OrgID: "org-1", Appointment: appt, PreviousStaffID: "staff-1"})

	require.True(t, out.AppliedRemotely)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "staff-new")
	require.Len(t, pos.updated, 1)
	assert.Equal(t, "ph-staff-1", pos.updated[0].ExternalStaffID)
}

func TestGateWithoutClientIsLocalOnly(t *testing.T) {
	gate := NewGate(enabled, nil, nil)
	out := gate.Propagate(context.Background(), Mutation{Kind: KindCreate, OrgID: "org-1", Appointment: testAppointment()})
	assert.Equal(t, SkipPOSNotConfigured, out.SkippedReason)
}
