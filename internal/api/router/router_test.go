package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-scheduler/internal/actions"
	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/dayrate"
	"github.com/wolfman30/salon-scheduler/internal/observability/metrics"
	"github.com/wolfman30/salon-scheduler/internal/possync"
	"github.com/wolfman30/salon-scheduler/internal/scheduling"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

type envelope struct {
	Success     bool            `json:"success"`
	ErrorReason string          `json:"error_reason"`
	Data        json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (http.Handler, *dayrate.MemoryStore) {
	t.Helper()
	logger := logging.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)

	rdb := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	settings := possync.NewSettingsStore(rdb)
	staff := possync.NewStaffMap(rdb)
	gate := possync.NewGate(settings, nil, logger).WithStaffMapper(staff).WithMetrics(m)

	engine := scheduling.NewEngine(appointments.NewMemoryStore(), gate, logger).WithMetrics(m)
	days := dayrate.NewMemoryStore()
	workflow := actions.NewWorkflow(actions.NewMemoryStore(), actions.NewEngineExecutor(engine), logger).WithMetrics(m)

	h := New(&Config{
		Logger:         logger,
		Appointments:   scheduling.NewHandler(engine, logger),
		Sync:           possync.NewHandler(settings, staff, logger),
		DayRate:        dayrate.NewHandler(dayrate.NewAllocator(days, logger).WithMetrics(m), logger),
		Actions:        actions.NewHandler(workflow, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthChecks:   checks,
	})
	return h, days
}

var asStaff = map[string]string{"X-Actor-Kind": "staff", "X-Actor-Id": "front-desk"}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, map[string]HealthCheck{"redis": func(context.Context) error { return nil }})
	rec, env := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	h, _ = newTestRouter(t, map[string]HealthCheck{"postgres": func(context.Context) error { return errors.New("down") }})
	rec, env = do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "dependency_unavailable", env.ErrorReason)
}

func TestAppointmentFlowThroughRouter(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	body := `{"staff_id":"staff-1","client_id":"c-1","client_name":"Dana","date":"2025-06-02","start_time":"09:00","end_time":"10:00"}`

	rec, env := do(t, h, http.MethodPost, "/api/v1/orgs/org-1/appointments", body, asStaff)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	rec, env = do(t, h, http.MethodPost, "/api/v1/orgs/org-1/appointments", body, asStaff)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "scheduling_conflict", env.ErrorReason)

	// Tenants are isolated by the path.
	rec, _ = do(t, h, http.MethodPost, "/api/v1/orgs/org-2/appointments", body, asStaff)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/orgs/org-1/appointments", body, map[string]string{"X-Actor-Kind": "agent"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "confirmation_required", env.ErrorReason)

	rec, env = do(t, h, http.MethodPost, "/api/v1/orgs/org-1/appointments", body, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "an unnamed caller is not trusted with direct mutations")
	assert.Equal(t, "confirmation_required", env.ErrorReason)
}

func TestSyncAndDayRateRoutesMounted(t *testing.T) {
	h, days := newTestRouter(t, nil)

	rec, env := do(t, h, http.MethodGet, "/api/v1/orgs/org-1/sync/settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	loc := dayrate.Location{ID: uuid.New(), OrgID: "org-1", Name: "Loft", DayRateEnabled: true, PriceCents: 9000}
	days.SeedLocation(loc, dayrate.Unit{ID: uuid.New(), LocationID: loc.ID, Name: "Chair 1", Active: true})

	rec, _ = do(t, h, http.MethodGet, "/api/v1/orgs/org-1/locations/"+loc.ID.String()+"/day-rate/check?date=2099-01-05", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = do(t, h, http.MethodGet, "/api/v1/orgs/org-1/actions", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	body := `{"client_id":"c-1","date":"2025-06-02","start_time":"09:00","end_time":"10:00"}`
	rec, _ := do(t, h, http.MethodPost, "/api/v1/orgs/org-1/appointments", body, asStaff)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "salon_scheduling_operations_total")
	assert.Contains(t, rec.Body.String(), `salon_possync_propagations_total{kind="create",result="write_disabled"} 1`)
}
