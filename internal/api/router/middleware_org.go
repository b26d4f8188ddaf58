package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/salon-scheduler/internal/http/middleware"
	"github.com/wolfman30/salon-scheduler/internal/http/response"
	"github.com/wolfman30/salon-scheduler/internal/tenancy"
)

// requireOrgID takes the tenant from the {orgID} path segment. A token
// bound to another tenant is refused.
func requireOrgID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(chi.URLParam(r, "orgID"))
		if orgID == "" {
			response.Fail(w, http.StatusBadRequest, "missing_org", "missing org id")
			return
		}
		if claims, ok := httpmiddleware.ClaimsFromContext(r.Context()); ok && claims.OrgID != "" && claims.OrgID != orgID {
			response.Fail(w, http.StatusForbidden, "forbidden", "token is not valid for this org")
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithOrgID(r.Context(), orgID)))
	})
}

