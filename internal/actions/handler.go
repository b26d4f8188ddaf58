package actions

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/http/response"
	"github.com/wolfman30/salon-scheduler/internal/tenancy"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

// Handler exposes the action workflow over HTTP.
type Handler struct {
	workflow *Workflow
	logger   *logging.Logger
}

// NewHandler exposes the action workflow over HTTP.
func NewHandler(workflow *Workflow, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{workflow: workflow, logger: logger}
}

// Routes returns the action routes, mounted under a tenant prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Propose)
	r.Get("/", h.List)
	r.Route("/{actionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/confirm", h.Confirm)
		r.Post("/reject", h.Reject)
		r.Post("/execute", h.Execute)
	})
	return r
}

type proposeRequest struct {
	Kind   Kind   `json:"kind"`
	Params Params `json:"params"`
}

// Propose handles POST /actions. Assistants are expected to call this.
func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	orgID, ok := scope(w, r)
	if !ok {
		return
	}
	var req proposeRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	a, err := h.workflow.Propose(r.Context(), ProposeRequest{
		OrgID:      orgID,
		Kind:       req.Kind,
		Params:     req.Params,
		ProposedBy: tenancy.ActorFromContext(r.Context()).String(),
	})
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusCreated, response.Envelope{Message: a.Preview.Summary, Data: a})
}

// List handles GET /actions. ?status= filters; the default is pending work.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := scope(w, r)
	if !ok {
		return
	}
	var (
		list []Action
		err  error
	)
	if raw := r.URL.Query()["status"]; len(raw) > 0 {
		statuses := make([]Status, 0, len(raw))
		for _, s := range raw {
			statuses = append(statuses, Status(s))
		}
		list, err = h.workflow.List(r.Context(), orgID, statuses...)
	} else {
		list, err = h.workflow.ListPending(r.Context(), orgID)
	}
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	if list == nil {
		list = []Action{}
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: list})
}

// Get handles GET /actions/{actionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	a, err := h.workflow.Get(r.Context(), orgID, id)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: a})
}

// Confirm handles POST /actions/{actionID}/confirm. An assistant cannot
// approve its own proposal.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.Confirm)
}

// Reject handles POST /actions/{actionID}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.Reject)
}

type decideFunc func(ctx context.Context, orgID string, id uuid.UUID, actor string) (*Action, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn decideFunc) {
	orgID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	actor := tenancy.ActorFromContext(r.Context())
	if actor.IsAgent() {
		h.logger.Warn("agent attempted to decide an action", "org_id", orgID, "action_id", id, "actor", actor.String())
		response.Fail(w, http.StatusForbidden, "confirmation_required", "actions must be confirmed by a person")
		return
	}
	a, err := fn(r.Context(), orgID, id, actor.String())
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Data: a})
}

// Execute handles POST /actions/{actionID}/execute. A failed schedule
// change is reported with success=false and the stored reason.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	a, err := h.workflow.Execute(r.Context(), orgID, id)
	if err != nil {
		response.Error(w, h.logger, err, classify)
		return
	}
	if a.Status == StatusFailed {
		response.WriteJSON(w, http.StatusOK, response.Envelope{
			Success:     false,
			ErrorReason: "execution_failed",
			Message:     a.FailureReason,
			Data:        a,
		})
		return
	}
	response.OK(w, http.StatusOK, response.Envelope{Message: a.ResultMessage, Data: a})
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	orgID, ok := scope(w, r)
	if !ok {
		return "", uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "actionID"))
	if err != nil {
		response.Error(w, h.logger, response.BadRequest("invalid action id"))
		return "", uuid.Nil, false
	}
	return orgID, id, true
}

func scope(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusBadRequest, "missing_org", "missing org context")
		return "", false
	}
	return orgID, true
}

func classify(err error) (response.Classification, bool) {
	switch {
	case errors.Is(err, ErrInvalidActionState):
		return response.Classification{Status: http.StatusConflict, Reason: "invalid_action_state"}, true
	case errors.Is(err, ErrInvalidParams):
		return response.Classification{Status: http.StatusBadRequest, Reason: "invalid_params"}, true
	}
	return response.Classification{}, false
}
