package dayrate

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
	"github.com/wolfman30/salon-scheduler/internal/http/response"
	"github.com/wolfman30/salon-scheduler/internal/tenancy"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

// Handler serves day-rate availability and bookings.
type Handler struct {
	alloc  *Allocator
	logger *logging.Logger
}

// NewHandler exposes the allocator over HTTP.
func NewHandler(alloc *Allocator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{alloc: alloc, logger: logger}
}

// RegisterRoutes attaches the day-rate routes to a tenant-scoped router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/locations/{locationID}/day-rate", func(r chi.Router) {
		r.Get("/availability", h.Availability)
		r.Get("/check", h.CheckDate)
		r.Post("/bookings", h.Book)
		r.Post("/blackouts", h.PutBlackout)
		r.Put("/blackouts", h.PutBlackout)
		r.Delete("/blackouts", h.DeleteBlackout)
	})
	r.Get("/day-rate/bookings/{bookingID}", h.GetBooking)
	r.Post("/day-rate/bookings/{bookingID}/cancel", h.Cancel)
}

type bookRequest struct {
	Date          calendar.Date `json:"date"`
	RenterName    string        `json:"renter_name"`
	RenterContact string        `json:"renter_contact"`
	Timezone      string        `json:"tz"`
}

type blackoutRequest struct {
	Date   calendar.Date `json:"date"`
	Reason string        `json:"reason"`
}

// Availability handles GET /locations/{locationID}/day-rate/availability.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	orgID, locationID, ok := h.scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := calendar.ParseDate(q.Get("from"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("from: %v", err))
		return
	}
	to := from
	if raw := q.Get("to"); raw != "" {
		if to, err = calendar.ParseDate(raw); err != nil {
			response.Error(w, h.logger, response.BadRequest("to: %v", err))
			return
		}
	}
	today, err := h.alloc.Today(r.Context(), orgID, locationID, q.Get("tz"))
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	days, err := h.alloc.Availability(r.Context(), orgID, locationID, from, to, today)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: map[string]any{"today": today, "days": days}})
}

// CheckDate handles GET /locations/{locationID}/day-rate/check.
func (h *Handler) CheckDate(w http.ResponseWriter, r *http.Request) {
	orgID, locationID, ok := h.scope(w, r)
	if !ok {
		return
	}
	date, err := calendar.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("date: %v", err))
		return
	}
	today, err := h.alloc.Today(r.Context(), orgID, locationID, r.URL.Query().Get("tz"))
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	check, err := h.alloc.CheckDate(r.Context(), orgID, locationID, date, today)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: check})
}

// Book handles POST /locations/{locationID}/day-rate/bookings.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	orgID, locationID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	today, err := h.alloc.Today(r.Context(), orgID, locationID, req.Timezone)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	booking, err := h.alloc.Book(r.Context(), BookRequest{
		OrgID:         orgID,
		LocationID:    locationID,
		Date:          req.Date,
		RenterName:    req.RenterName,
		RenterContact: req.RenterContact,
		Today:         today,
	})
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusCreated, response.Envelope{Data: booking})
}

// GetBooking handles GET /day-rate/bookings/{bookingID}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusBadRequest, "missing_org", "missing org context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("invalid booking id"))
		return
	}
	booking, err := h.alloc.GetBooking(r.Context(), orgID, id)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: booking})
}

// Cancel handles POST /day-rate/bookings/{bookingID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusBadRequest, "missing_org", "missing org context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("invalid booking id"))
		return
	}
	booking, err := h.alloc.Cancel(r.Context(), orgID, id)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: booking})
}

// PutBlackout handles POST and PUT /locations/{locationID}/day-rate/blackouts.
func (h *Handler) PutBlackout(w http.ResponseWriter, r *http.Request) {
	orgID, locationID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req blackoutRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	blackout, err := h.alloc.AddBlackout(r.Context(), orgID, locationID, req.Date, req.Reason)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: blackout})
}

// DeleteBlackout handles DELETE /locations/{locationID}/day-rate/blackouts?date=.
func (h *Handler) DeleteBlackout(w http.ResponseWriter, r *http.Request) {
	orgID, locationID, ok := h.scope(w, r)
	if !ok {
		return
	}
	date, err := calendar.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("date: %v", err))
		return
	}
	if err := h.alloc.RemoveBlackout(r.Context(), orgID, locationID, date); err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusBadRequest, "missing_org", "missing org context")
		return "", uuid.Nil, false
	}
	locationID, err := uuid.Parse(chi.URLParam(r, "locationID"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("invalid location id"))
		return "", uuid.Nil, false
	}
	return orgID, locationID, true
}

func classify(err error) (response.Classification, bool) {
	switch {
	case errors.Is(err, ErrCapacityExhausted):
		return response.Classification{Status: http.StatusConflict, Reason: "capacity_exhausted"}, true
	case errors.Is(err, ErrNotOffered):
		return response.Classification{Status: http.StatusNotFound, Reason: "not_offered"}, true
	case errors.Is(err, ErrDateUnavailable):
		return response.Classification{Status: http.StatusConflict, Reason: "date_unavailable"}, true
	case errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidRequest):
		return response.Classification{Status: http.StatusBadRequest, Reason: "invalid_request"}, true
	}
	return response.Classification{}, false
}
