// Package phorest contains the Phorest third-party API client used to mirror
// locally booked appointments into the salon's point-of-sale system.
package phorest

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceSchedule is one service slot inside a booking request.
type ServiceSchedule struct {
	ServiceID     string `json:"serviceId"`
	StaffID       string `json:"staffId,omitempty"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime,omitempty"`
	AppointmentID string `json:"appointmentId,omitempty"`
}

// ClientAppointmentSchedule groups the services booked for one client.
type ClientAppointmentSchedule struct {
	ClientID         string            `json:"clientId"`
	ServiceSchedules []ServiceSchedule `json:"serviceSchedules"`
}

// BookingRequest creates one or more appointments in a branch.
type BookingRequest struct {
	ClientID                   string                      `json:"clientId"`
	BookingStatus              string                      `json:"bookingStatus,omitempty"`
	Note                       string                      `json:"note,omitempty"`
	ClientAppointmentSchedules []ClientAppointmentSchedule `json:"clientAppointmentSchedules"`
}

// BookingResponse echoes the schedules with the appointment ids Phorest assigned.
type BookingResponse struct {
	BookingID                  string                      `json:"bookingId"`
	ClientAppointmentSchedules []ClientAppointmentSchedule `json:"clientAppointmentSchedules"`
}

// FirstAppointmentID returns the id assigned to the first scheduled service.
func (r BookingResponse) FirstAppointmentID() string {
	for _, c := range r.ClientAppointmentSchedules {
		for _, s := range c.ServiceSchedules {
			if s.AppointmentID != "" {
				return s.AppointmentID
			}
		}
	}
	return ""
}

// AppointmentUpdate moves an existing appointment.
type AppointmentUpdate struct {
	AppointmentDate string `json:"appointmentDate"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	StaffID         string `json:"staffId,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// APIError is a non-2xx response from Phorest.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("phorest API %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// IsConflict reports whether Phorest rejected the slot as taken.
func (e *APIError) IsConflict() bool { return e.StatusCode == http.StatusConflict }

// IsValidation reports whether Phorest rejected the payload.
func (e *APIError) IsValidation() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// IsConflict reports whether err is a Phorest slot conflict.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsConflict()
}

// IsValidation reports whether err is a Phorest validation rejection.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsValidation()
}
