package phorest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/salon-scheduler/internal/possync"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, "biz-1", "user", "secret", logging.Default())
}

func remoteAppointment() possync.RemoteAppointment {
	return possync.RemoteAppointment{
		ExternalID:      "ph-appt-1",
		BranchID:        "br-1",
		ExternalStaffID: "ph-staff-1",
		ClientID:        "ph-client-1",
		ServiceID:       "ph-svc-1",
		Start:           time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC),
		End:             time.Date(2026, 2, 21, 11, 30, 0, 0, time.UTC),
	}
}

func TestAdapterCreateAppointment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/business/biz-1/branch/br-1/booking" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "secret" {
			t.Fatalf("basic auth = %q/%q (%v)", user, pass, ok)
		}
		var req BookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		sched := req.ClientAppointmentSchedules[0].ServiceSchedules[0]
		if sched.StaffID != "ph-staff-1" || sched.ServiceID != "ph-svc-1" {
			t.Fatalf("unexpected schedule %+v", sched)
		}
		if sched.StartTime != "2026-02-21T10:00:00.000Z" {
			t.Fatalf("startTime = %s", sched.StartTime)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bookingId":"bk-1","clientAppointmentSchedules":[{"clientId":"ph-client-1","serviceSchedules":[{"serviceId":"ph-svc-1","appointmentId":"ph-appt-9"}]}]}`))
	})

	id, err := NewAdapter(client).CreateAppointment(context.Background(), remoteAppointment())
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	if id != "ph-appt-9" {
		t.Fatalf("id = %s, want ph-appt-9", id)
	}
}

func TestAdapterCreateAppointmentWithoutID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bookingId":"bk-1"}`))
	})
	if _, err := NewAdapter(client).CreateAppointment(context.Background(), remoteAppointment()); err != ErrMissingAppointmentID {
		t.Fatalf("err = %v, want ErrMissingAppointmentID", err)
	}
}

func TestAdapterUpdateAppointment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/api/business/biz-1/branch/br-1/appointment/ph-appt-1" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		var update AppointmentUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if update.AppointmentDate != "2026-02-21" || update.StartTime != "10:00:00" || update.EndTime != "11:30:00" {
			t.Fatalf("unexpected update %+v", update)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := NewAdapter(client).UpdateAppointment(context.Background(), remoteAppointment()); err != nil {
		t.Fatalf("UpdateAppointment() error = %v", err)
	}
}

func TestAdapterCancelAppointmentConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/business/biz-1/branch/br-1/appointment/ph-appt-1/cancel" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		http.Error(w, "appointment already checked out", http.StatusConflict)
	})

	err := NewAdapter(client).CancelAppointment(context.Background(), "br-1", "ph-appt-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("IsConflict(%v) = false", err)
	}
	if IsValidation(err) {
		t.Fatal("conflict must not be reported as validation")
	}
}

func TestClientValidationError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"staff not qualified"}`, http.StatusBadRequest)
	})

	err := client.UpdateAppointment(context.Background(), "br-1", "ph-appt-1", AppointmentUpdate{})
	if !IsValidation(err) {
		t.Fatalf("IsValidation(%v) = false", err)
	}
}

func TestAdapterRequiresBranch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	appt := remoteAppointment()
	appt.BranchID = ""
	if err := NewAdapter(client).UpdateAppointment(context.Background(), appt); err == nil {
		t.Fatal("expected error for missing branch")
	}
}
