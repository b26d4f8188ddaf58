package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-scheduler/internal/tenancy"
)

func signedToken(t *testing.T, secret, kind, subject string) string {
	t.Helper()
	signed, err := IssueToken(secret, tenancy.Actor{Kind: kind, ID: subject}, "org-1", time.Hour)
	require.NoError(t, err)
	return signed
}

func actorCapture(got *tenancy.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = tenancy.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestIdentityHeadersWithoutSecret(t *testing.T) {
	var got tenancy.Actor
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorKindHeader, "agent")
	req.Header.Set(ActorIDHeader, "concierge")
	rec := httptest.NewRecorder()

	Identity("")(actorCapture(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, tenancy.Actor{Kind: "agent", ID: "concierge"}, got)
}

func TestIdentityNoHeadersIsAgent(t *testing.T) {
	var got tenancy.Actor
	rec := httptest.NewRecorder()
	Identity("")(actorCapture(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "agent", got.Kind)
	assert.True(t, got.IsAgent())
}

func TestIdentityRequiresToken(t *testing.T) {
	var got tenancy.Actor
	rec := httptest.NewRecorder()
	Identity("secret")(actorCapture(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong", "staff", "u-1"))
	rec = httptest.NewRecorder()
	Identity("secret")(actorCapture(&got)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityValidToken(t *testing.T) {
	var got tenancy.Actor
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "agent", "concierge"))
	// Headers are ignored once tokens are required.
	req.Header.Set(ActorKindHeader, "staff")
	rec := httptest.NewRecorder()

	var claimsOrg string
	h := Identity("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = tenancy.ActorFromContext(r.Context())
		if c, ok := ClaimsFromContext(r.Context()); ok {
			claimsOrg = c.OrgID
		}
	}))
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenancy.Actor{Kind: "agent", ID: "concierge"}, got)
	assert.Equal(t, "org-1", claimsOrg)
}

func TestIdentityDefaultsToStaff(t *testing.T) {
	var got tenancy.Actor
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "", "front-desk"))
	rec := httptest.NewRecorder()
	Identity("secret")(actorCapture(&got)).ServeHTTP(rec, req)
	assert.Equal(t, tenancy.Actor{Kind: "staff", ID: "front-desk"}, got)
}

func TestIdentityRejectsExpiredToken(t *testing.T) {
	expired, err := IssueToken("secret", tenancy.Actor{Kind: "staff", ID: "u-1"}, "org-1", -time.Minute)
	require.NoError(t, err)

	var got tenancy.Actor
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()
	Identity("secret")(actorCapture(&got)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
