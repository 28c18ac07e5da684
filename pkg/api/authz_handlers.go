package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatekeeper/pkg/authz"
	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/middleware"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// AuthzHandlers handles authorization decision requests
type AuthzHandlers struct {
	authorizer  Authorizer
	actorHeader string
}

// NewAuthzHandlers creates a new AuthzHandlers
func NewAuthzHandlers(authorizer Authorizer, actorHeader string) *AuthzHandlers {
	return &AuthzHandlers{
		authorizer:  authorizer,
		actorHeader: actorHeader,
	}
}

// RegisterRoutes registers decision routes
func (h *AuthzHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authorize", h.Authorize).Methods(http.MethodPost)
	router.HandleFunc("/actors/{id}/tenants", h.ListAccessibleTenants).Methods(http.MethodGet)
	router.HandleFunc("/actors/{id}/tenants/{tenant}", h.CheckTenantAccess).Methods(http.MethodGet)

	// Role changes act on behalf of the verified caller
	router.Handle("/users/{id}/role",
		middleware.ActorFromHeader(h.actorHeader)(http.HandlerFunc(h.ChangeRole))).Methods(http.MethodPost)
}

// Authorize handles POST /v1/authorize. Allowed and denied decisions are both
// 200; indeterminate is 503 with a generic body.
func (h *AuthzHandlers) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authz.Request
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w,
		httputil.RequireNonEmpty(req.ActorID, "actor_id"),
		httputil.RequireNonEmpty(string(req.Resource), "resource"),
		httputil.RequireNonEmpty(string(req.Action), "action"),
	) {
		return
	}
	d, err := h.authorizer.Authorize(r.Context(), req)
	if err != nil {
		writeIndeterminate(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, DecisionResponse{Outcome: d.Outcome, Reason: d.Reason})
}

// ListAccessibleTenants handles GET /v1/actors/{id}/tenants
func (h *AuthzHandlers) ListAccessibleTenants(w http.ResponseWriter, r *http.Request) {
	actorID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	ids, err := h.authorizer.AccessibleTenants(r.Context(), actorID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to list accessible tenants")
		writeIndeterminate(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, TenantsResponse{ActorID: actorID, TenantIDs: ids})
}

// CheckTenantAccess handles GET /v1/actors/{id}/tenants/{tenant}
func (h *AuthzHandlers) CheckTenantAccess(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	actorID, tenantID := vars["id"], vars["tenant"]

	allowed, err := h.authorizer.CanAccessTenant(r.Context(), actorID, tenantID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to check tenant access")
		writeIndeterminate(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, TenantAccessResponse{
		ActorID:  actorID,
		TenantID: tenantID,
		Allowed:  allowed,
	})
}

// ChangeRole handles POST /v1/users/{id}/role. Denials are 403 with the
// decision body.
func (h *AuthzHandlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	targetID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w, httputil.RequireNonEmpty(string(req.Role), "role")) {
		return
	}

	managerID := contextkeys.GetActorID(r.Context())
	d, err := h.authorizer.ChangeUserRole(r.Context(), managerID, targetID, req.Role)
	if err != nil {
		writeIndeterminate(w)
		return
	}

	status := http.StatusOK
	if !d.Allowed() {
		status = http.StatusForbidden
	}
	httputil.WriteJSON(w, status, DecisionResponse{Outcome: d.Outcome, Reason: d.Reason})
}

func writeIndeterminate(w http.ResponseWriter) {
	httputil.WriteJSON(w, http.StatusServiceUnavailable, IndeterminateResponse{
		Outcome: authz.Indeterminate,
		Error:   "authorization temporarily unavailable",
	})
}
