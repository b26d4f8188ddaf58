// Package response renders the JSON envelope shared by every API handler.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

const maxBodyBytes = 1 << 20

// ErrBadRequest marks malformed input detected by a handler.
var ErrBadRequest = errors.New("bad request")

// BadRequest builds an error wrapping ErrBadRequest.
func BadRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Envelope is the body of every scheduling response.
type Envelope struct {
	Success         bool     `json:"success"`
	AppliedRemotely *bool    `json:"applied_remotely,omitempty"`
	CreatedCount    int      `json:"created_count,omitempty"`
	Skipped         any      `json:"skipped,omitempty"`
	ErrorReason     string   `json:"error_reason,omitempty"`
	Message         string   `json:"message,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Data            any      `json:"data,omitempty"`
}

// Classification is an HTTP status plus the machine-readable reason.
type Classification struct {
	Status int
	Reason string
}

// Classifier maps package-specific errors. It returns false for errors it
// does not recognise.
type Classifier func(err error) (Classification, bool)

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, status int, env Envelope) {
	env.Success = true
	env.ErrorReason = ""
	WriteJSON(w, status, env)
}

// Fail writes a failure envelope.
func Fail(w http.ResponseWriter, status int, reason, message string) {
	WriteJSON(w, status, Envelope{Success: false, ErrorReason: reason, Message: message})
}

// Bool returns a pointer for the optional applied_remotely field.
func Bool(v bool) *bool { return &v }

// DecodeJSON reads a bounded JSON body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return BadRequest("request body is empty")
		}
		return BadRequest("invalid request body: %v", err)
	}
	return nil
}

// Classify maps the shared scheduling errors to a status and reason.
func Classify(err error, extra ...Classifier) Classification {
	for _, c := range extra {
		if c == nil {
			continue
		}
		if got, ok := c(err); ok {
			return got
		}
	}
	switch {
	case errors.Is(err, ErrBadRequest):
		return Classification{http.StatusBadRequest, "invalid_request"}
	case errors.Is(err, appointments.ErrNotFound):
		return Classification{http.StatusNotFound, "not_found"}
	case errors.Is(err, appointments.ErrAlreadyCancelled):
		return Classification{http.StatusConflict, "already_cancelled"}
	case errors.Is(err, appointments.ErrSchedulingConflict):
		return Classification{http.StatusConflict, "scheduling_conflict"}
	case errors.Is(err, appointments.ErrInvalidRecurrenceRule):
		return Classification{http.StatusBadRequest, "invalid_recurrence_rule"}
	case errors.Is(err, appointments.ErrInvalidTimeRange):
		return Classification{http.StatusBadRequest, "invalid_time_range"}
	case errors.Is(err, appointments.ErrStorage):
		return Classification{http.StatusServiceUnavailable, "storage_unavailable"}
	}
	return Classification{http.StatusInternalServerError, "internal_error"}
}

// Error classifies err and writes the failure envelope. Server-side errors
// are logged and their detail withheld from the caller.
func Error(w http.ResponseWriter, logger *logging.Logger, err error, extra ...Classifier) {
	if logger == nil {
		logger = logging.Default()
	}
	c := Classify(err, extra...)
	env := Envelope{Success: false, ErrorReason: c.Reason, Message: err.Error()}
	if c.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "reason", c.Reason, "error", err)
		env.Message = http.StatusText(c.Status)
	}
	var conflict *appointments.ConflictError
	if errors.As(err, &conflict) {
		env.Data = map[string]any{"conflicting_appointment": conflict.With}
	}
	WriteJSON(w, c.Status, env)
}
