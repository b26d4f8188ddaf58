package phorest

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/salon-scheduler/internal/possync"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// ErrMissingAppointmentID is returned when Phorest accepts a booking without
// echoing an appointment id.
var ErrMissingAppointmentID = errors.New("phorest: booking response carried no appointment id")

// Adapter implements possync.POSClient on top of Client.
type Adapter struct {
	client *Client
}

// NewAdapter creates a POS adapter for the sync gate.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

var _ possync.POSClient = (*Adapter)(nil)

func (a *Adapter) CreateAppointment(ctx context.Context, appt possync.RemoteAppointment) (string, error) {
	if appt.BranchID == "" {
		return "", fmt.Errorf("phorest: branch id is required")
	}
	req := BookingRequest{
		ClientID:      appt.ClientID,
		BookingStatus: "ACTIVE",
		Note:          appt.Notes,
		ClientAppointmentSchedules: []ClientAppointmentSchedule{{
			ClientID: appt.ClientID,
			ServiceSchedules: []ServiceSchedule{{
				ServiceID: appt.ServiceID,
				StaffID:   appt.ExternalStaffID,
				StartTime: appt.Start.Format("2006-01-02T15:04:05.000Z07:00"),
				EndTime:   appt.End.Format("2006-01-02T15:04:05.000Z07:00"),
			}},
		}},
	}
	resp, err := a.client.CreateBooking(ctx, appt.BranchID, req)
	if err != nil {
		return "", err
	}
	id := resp.FirstAppointmentID()
	if id == "" {
		return "", ErrMissingAppointmentID
	}
	return id, nil
}

func (a *Adapter) UpdateAppointment(ctx context.Context, appt possync.RemoteAppointment) error {
	if appt.BranchID == "" {
		return fmt.Errorf("phorest: branch id is required")
	}
	return a.client.UpdateAppointment(ctx, appt.BranchID, appt.ExternalID, AppointmentUpdate{
		AppointmentDate: appt.Start.Format(dateLayout),
		StartTime:       appt.Start.Format(timeLayout),
		EndTime:         appt.End.Format(timeLayout),
		StaffID:         appt.ExternalStaffID,
		Notes:           appt.Notes,
	})
}

func (a *Adapter) CancelAppointment(ctx context.Context, branchID, externalID string) error {
	if branchID == "" {
		return fmt.Errorf("phorest: branch id is required")
	}
	return a.client.CancelAppointment(ctx, branchID, externalID)
}
