// Package possync decides whether locally committed appointment changes are
// mirrored to the external point-of-sale system and performs the push.
package possync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
)

// MutationKind identifies the local change being mirrored.
type MutationKind string

const (
	KindCreate     MutationKind = "create"
	KindReschedule MutationKind = "reschedule"
	KindCancel     MutationKind = "cancel"
)

// Skip reasons reported when no remote write was attempted.
const (
	SkipWriteDisabled       = "write_disabled"
	SkipNotMirrored         = "not_mirrored"
	SkipPOSNotConfigured    = "pos_not_configured"
	SkipSettingsUnavailable = "settings_unavailable"
)

// Mutation is a committed local change handed to the gate.
type Mutation struct {
	Kind        MutationKind
	OrgID       string
	Appointment appointments.Appointment

	// PreviousStaffID is set on reschedules that moved the appointment to
	// another staff member.
	PreviousStaffID string
}

// StaffChanged reports whether a reschedule reassigned the appointment.
func (m Mutation) StaffChanged() bool {
	return m.Kind == KindReschedule && m.PreviousStaffID != "" && m.PreviousStaffID != m.Appointment.StaffID
}

// Outcome is the remote half of a scheduling result. It never carries an
// error value; failures are described in Error and logged by the gate.
type Outcome struct {
	Attempted       bool     `json:"attempted"`
	AppliedRemotely bool     `json:"applied_remotely"`
	ExternalID      string   `json:"external_id,omitempty"`
	SkippedReason   string   `json:"skipped_reason,omitempty"`
	Error           string   `json:"error,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Failed reports whether a remote write was attempted and did not land.
func (o Outcome) Failed() bool {
	return o.Attempted && !o.AppliedRemotely
}

// RemoteAppointment is the POS-facing view of an appointment.
type RemoteAppointment struct {
	ExternalID      string
	BranchID        string
	ExternalStaffID string
	ClientID        string
	ServiceID       string
	Start           time.Time
	End             time.Time
	Notes           string
}

// POSClient writes appointments to the external system of record.
type POSClient interface {
	CreateAppointment(ctx context.Context, appt RemoteAppointment) (string, error)
	UpdateAppointment(ctx context.Context, appt RemoteAppointment) error
	CancelAppointment(ctx context.Context, branchID, externalID string) error
}

// SettingsSource loads the per-tenant write policy.
type SettingsSource interface {
	Get(ctx context.Context, orgID string) (Settings, error)
}

// StaffMapper resolves internal staff ids to POS staff ids.
type StaffMapper interface {
	ExternalStaffID(ctx context.Context, orgID, staffID string) (string, bool, error)
}

// ExternalIDWriter stores the POS id returned by a successful create.
type ExternalIDWriter interface {
	SetExternalID(ctx context.Context, orgID string, id uuid.UUID, externalID string) error
}

// Failure describes a remote write that did not land.
type Failure struct {
	OrgID         string
	Kind          MutationKind
	AppointmentID uuid.UUID
	Reason        string
	OccurredAt    time.Time
}

// FailureRecorder is told about remote failures so operators can follow up.
type FailureRecorder interface {
	RecordSyncFailure(ctx context.Context, f Failure) error
}
