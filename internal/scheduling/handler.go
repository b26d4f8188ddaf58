package scheduling

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
	"github.com/wolfman30/salon-scheduler/internal/http/response"
	"github.com/wolfman30/salon-scheduler/internal/tenancy"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

// Handler exposes the engine over HTTP.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

// NewHandler creates a scheduling handler.
func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// Routes returns the appointment routes, mounted under a tenant prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/conflicts", h.CheckConflict)
	r.Route("/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/reschedule", h.Reschedule)
		r.Post("/cancel", h.Cancel)
		r.Post("/recurrence", h.ExpandRecurrence)
	})
	return r
}

type createRequest struct {
	StaffID        string                       `json:"staff_id"`
	ClientID       string                       `json:"client_id"`
	ClientName     string                       `json:"client_name"`
	ServiceID      string                       `json:"service_id"`
	ServiceName    string                       `json:"service_name"`
	LocationID     string                       `json:"location_id"`
	Date           calendar.Date                `json:"date"`
	StartTime      calendar.Clock               `json:"start_time"`
	EndTime        calendar.Clock               `json:"end_time"`
	PriceCents     int                          `json:"price_cents"`
	Notes          string                       `json:"notes"`
	RecurrenceRule *appointments.RecurrenceRule `json:"recurrence_rule"`
}

type rescheduleRequest struct {
	NewDate      calendar.Date  `json:"new_date"`
	NewStartTime calendar.Clock `json:"new_start_time"`
	NewStaffID   *string        `json:"new_staff_id"`
}

// Create handles POST /appointments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.mutationScope(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	out, err := h.engine.Create(r.Context(), NewAppointment{
		OrgID:          orgID,
		StaffID:        req.StaffID,
		ClientID:       req.ClientID,
		ClientName:     req.ClientName,
		ServiceID:      req.ServiceID,
		ServiceName:    req.ServiceName,
		LocationID:     req.LocationID,
		Date:           req.Date,
		Start:          req.StartTime,
		End:            req.EndTime,
		PriceCents:     req.PriceCents,
		Notes:          req.Notes,
		RecurrenceRule: req.RecurrenceRule,
	})
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusCreated, envelope(out))
}

// Get handles GET /appointments/{appointmentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, err := appointmentID(r)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	appt, err := h.engine.Get(r.Context(), orgID, id)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: appt})
}

// CheckConflict handles GET /appointments/conflicts.
func (h *Handler) CheckConflict(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date, err := calendar.ParseDate(q.Get("date"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("date: %v", err))
		return
	}
	start, err := calendar.ParseClock(q.Get("start"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("start: %v", err))
		return
	}
	end, err := calendar.ParseClock(q.Get("end"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("end: %v", err))
		return
	}
	slot := Slot{OrgID: orgID, StaffID: q.Get("staff_id"), Date: date, Start: start, End: end}
	if raw := q.Get("exclude_id"); raw != "" {
		if slot.Exclude, err = uuid.Parse(raw); err != nil {
			response.Error(w, h.logger, response.BadRequest("exclude_id: %v", err))
			return
		}
	}
	conflict, err := h.engine.CheckConflict(r.Context(), slot)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	data := map[string]any{"has_conflict": conflict != nil}
	if conflict != nil {
		data["conflicting_appointment"] = conflict
		data["reason"] = "conflicts with " + conflict.Summary()
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: data})
}

// Reschedule handles POST /appointments/{appointmentID}/reschedule.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.mutationScope(w, r)
	if !ok {
		return
	}
	id, err := appointmentID(r)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	var req rescheduleRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	out, err := h.engine.Reschedule(r.Context(), RescheduleRequest{
		OrgID:         orgID,
		AppointmentID: id,
		NewDate:       req.NewDate,
		NewStart:      req.NewStartTime,
		NewStaffID:    req.NewStaffID,
	})
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, envelope(out))
}

// Cancel handles POST /appointments/{appointmentID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.mutationScope(w, r)
	if !ok {
		return
	}
	id, err := appointmentID(r)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	out, err := h.engine.Cancel(r.Context(), orgID, id)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, envelope(out))
}

// ExpandRecurrence handles POST /appointments/{appointmentID}/recurrence.
func (h *Handler) ExpandRecurrence(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.mutationScope(w, r)
	if !ok {
		return
	}
	id, err := appointmentID(r)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	var rule appointments.RecurrenceRule
	if err := response.DecodeJSON(w, r, &rule); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	out, err := h.engine.ExpandRecurrence(r.Context(), orgID, id, rule)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusCreated, envelope(out))
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusBadRequest, "missing_org", "missing org context")
		return "", false
	}
	return orgID, true
}

// mutationScope also keeps assistants off the direct mutation routes; they
// go through confirmed actions instead.
func (h *Handler) mutationScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, ok := h.scope(w, r)
	if !ok {
		return "", false
	}
	if actor := tenancy.ActorFromContext(r.Context()); actor.IsAgent() {
		h.logger.Warn("agent attempted direct schedule mutation", "org_id", orgID, "actor", actor.String(), "path", r.URL.Path)
		response.Fail(w, http.StatusForbidden, "confirmation_required", "assistants must propose an action for confirmation")
		return "", false
	}
	return orgID, true
}

func appointmentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		return uuid.Nil, response.BadRequest("invalid appointment id")
	}
	return id, nil
}

func classify(err error) (response.Classification, bool) {
	if errors.Is(err, ErrInvalidRequest) {
		return response.Classification{Status: http.StatusBadRequest, Reason: "invalid_request"}, true
	}
	return response.Classification{}, false
}

func envelope(out Outcome) response.Envelope {
	env := response.Envelope{
		AppliedRemotely: response.Bool(out.AppliedRemotely()),
		CreatedCount:    out.Local.CreatedCount,
		Data:            out,
	}
	if len(out.Local.Skipped) > 0 {
		env.Skipped = out.Local.Skipped
	}
	if out.Remote != nil {
		env.Warnings = append(env.Warnings, out.Remote.Warnings...)
		if out.Remote.Error != "" {
			env.Warnings = append(env.Warnings, "remote sync failed: "+out.Remote.Error)
		}
	}
	if out.SeriesPending > 0 {
		env.Warnings = append(env.Warnings, fmt.Sprintf("%d series instances queued for remote sync", out.SeriesPending))
	}
	return env
}
