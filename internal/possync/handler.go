package possync

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salon-scheduler/internal/http/response"
	"github.com/wolfman30/salon-scheduler/internal/tenancy"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

type settingsRepository interface {
	Get(ctx context.Context, orgID string) (Settings, error)
	Set(ctx context.Context, settings Settings) error
}

type staffMapRepository interface {
	Set(ctx context.Context, orgID, staffID, externalStaffID string) error
	All(ctx context.Context, orgID string) (map[string]string, error)
}

// Handler manages per-tenant sync settings and staff mappings.
type Handler struct {
	settings settingsRepository
	staff    staffMapRepository
	logger   *logging.Logger
}

// NewHandler exposes sync settings and staff mappings over HTTP.
func NewHandler(settings settingsRepository, staff staffMapRepository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{settings: settings, staff: staff, logger: logger}
}

// Routes returns the /sync routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
	r.Put("/staff-map/{staffID}", h.PutStaffMapping)
	return r
}

type settingsRequest struct {
	WriteEnabled bool   `json:"write_enabled"`
	BranchID     string `json:"branch_id"`
	Timezone     string `json:"timezone"`
}

type staffMappingRequest struct {
	ExternalStaffID string `json:"external_staff_id"`
}

// GetSettings handles GET /sync/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusBadRequest, "missing_org", "missing org context")
		return
	}
	settings, err := h.settings.Get(r.Context(), orgID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	data := map[string]any{"settings": settings}
	if h.staff != nil {
		mappings, err := h.staff.All(r.Context(), orgID)
		if err != nil {
			response.Error(w, h.logger, err)
			return
		}
		data["staff_map"] = mappings
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: data})
}

// PutSettings handles PUT /sync/settings.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusBadRequest, "missing_org", "missing org context")
		return
	}
	var req settingsRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	settings := Settings{
		OrgID:        orgID,
		WriteEnabled: req.WriteEnabled,
		BranchID:     strings.TrimSpace(req.BranchID),
		Timezone:     strings.TrimSpace(req.Timezone),
	}
	if settings.WriteEnabled && settings.BranchID == "" {
		response.Error(w, h.logger, response.BadRequest("branch_id is required when write is enabled"))
		return
	}
	if err := h.settings.Set(r.Context(), settings); err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	h.logger.Info("sync settings updated", "org_id", orgID, "write_enabled", settings.WriteEnabled, "actor", tenancy.ActorFromContext(r.Context()).String())
	response.OK(w, http.StatusOK, response.Envelope{Data: settings})
}

// PutStaffMapping handles PUT /sync/staff-map/{staffID}. An empty external
// id removes the mapping.
func (h *Handler) PutStaffMapping(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusBadRequest, "missing_org", "missing org context")
		return
	}
	if h.staff == nil {
		response.Fail(w, http.StatusNotFound, "not_configured", "staff mapping store not configured")
		return
	}
	staffID := chi.URLParam(r, "staffID")
	var req staffMappingRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	ext := strings.TrimSpace(req.ExternalStaffID)
	if err := h.staff.Set(r.Context(), orgID, staffID, ext); err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: map[string]string{"staff_id": staffID, "external_staff_id": ext}})
}

func classify(err error) (response.Classification, bool) {
	if errors.Is(err, ErrInvalidSettings) {
		return response.Classification{Status: http.StatusBadRequest, Reason: "invalid_settings"}, true
	}
	return response.Classification{}, false
}
