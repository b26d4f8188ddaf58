package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/tenancy"
)

type envelopeBody struct {
	Success         bool            `json:"success"`
	AppliedRemotely *bool           `json:"applied_remotely"`
	CreatedCount    int             `json:"created_count"`
	Skipped         []SkippedDate   `json:"skipped"`
	ErrorReason     string          `json:"error_reason"`
	Data            json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (http.Handler, *appointments.MemoryStore) {
	t.Helper()
	engine, store, _ := newTestEngine(t)
	h := NewHandler(engine, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenancy.WithOrgID(req.Context(), "org-1")
			if kind := req.Header.Get("X-Actor-Kind"); kind != "" {
				ctx = tenancy.WithActor(ctx, tenancy.Actor{Kind: kind, ID: "test"})
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Mount("/appointments", h.Routes())
	return r, store
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelopeBody) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelopeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHandlerCreateWithRecurrence(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"staff_id":"staff-1","client_id":"c-1","client_name":"Dana","date":"2025-03-10",
		"start_time":"09:00","end_time":"10:00","recurrence_rule":{"frequency":"weekly","occurrences":3}}`

	rec, env := doRequest(t, srv, http.MethodPost, "/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, 3, env.CreatedCount)
	require.NotNil(t, env.AppliedRemotely)
	assert.True(t, *env.AppliedRemotely)
}

func TestHandlerCreateConflict(t *testing.T) {
	srv, store := newTestServer(t)
	store.Seed(seeded("staff-1", clock(9, 30), clock(10, 30), appointments.StatusBooked))
	body := `{"staff_id":"staff-1","client_id":"c-1","date":"2025-03-10","start_time":"09:00","end_time":"10:00"}`

	rec, env := doRequest(t, srv, http.MethodPost, "/appointments", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "scheduling_conflict", env.ErrorReason)
	assert.Contains(t, rec.Body.String(), "Morgan")
}

func TestHandlerRescheduleAndCancel(t *testing.T) {
	srv, store := newTestServer(t)
	appt := seeded("staff-1", clock(9, 0), clock(10, 0), appointments.StatusBooked)
	store.Seed(appt)
	base := "/appointments/" + appt.ID.String()

	rec, env := doRequest(t, srv, http.MethodPost, base+"/reschedule", `{"new_date":"2025-03-11","new_start_time":"14:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	stored, err := store.Get(t.Context(), "org-1", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, clock(15, 0), stored.End)

	rec, _ = doRequest(t, srv, http.MethodPost, base+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = doRequest(t, srv, http.MethodPost, base+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_cancelled", env.ErrorReason)
}

func TestHandlerRejectsAgentMutations(t *testing.T) {
	srv, store := newTestServer(t)
	appt := seeded("staff-1", clock(9, 0), clock(10, 0), appointments.StatusBooked)
	store.Seed(appt)

	req := httptest.NewRequest(http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", nil)
	req.Header.Set("X-Actor-Kind", "agent")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	stored, err := store.Get(t.Context(), "org-1", appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Cancelled())
}

func TestHandlerCheckConflict(t *testing.T) {
	srv, store := newTestServer(t)
	busy := seeded("staff-1", clock(10, 0), clock(11, 0), appointments.StatusBooked)
	store.Seed(busy)

	rec, env := doRequest(t, srv, http.MethodGet, "/appointments/conflicts?staff_id=staff-1&date=2025-03-10&start=10:30&end=11:30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		HasConflict bool `json:"has_conflict"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.HasConflict)

	rec, env = doRequest(t, srv, http.MethodGet, "/appointments/conflicts?staff_id=staff-1&date=2025-03-10&start=10:30&end=11:30&exclude_id="+busy.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.False(t, data.HasConflict)

	rec, env = doRequest(t, srv, http.MethodGet, "/appointments/conflicts?staff_id=staff-1&date=bad&start=10:30&end=11:30", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", env.ErrorReason)
}

func TestHandlerGetNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodGet, "/appointments/6f1c1c64-8b6e-4a4e-9d0e-2f3a4b5c6d7e", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.ErrorReason)
}

func TestHandlerExpandRecurrenceRejectsBadRule(t *testing.T) {
	srv, store := newTestServer(t)
	appt := seeded("staff-1", clock(9, 0), clock(10, 0), appointments.StatusBooked)
	store.Seed(appt)

	rec, env := doRequest(t, srv, http.MethodPost, "/appointments/"+appt.ID.String()+"/recurrence", `{"frequency":"daily","occurrences":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_recurrence_rule", env.ErrorReason)
}
