package api

import (
	"github.com/platinummonkey/gatekeeper/pkg/authz"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// DecisionResponse is the body returned for authorization decisions
type DecisionResponse struct {
	Outcome authz.Outcome `json:"outcome"`
	Reason  authz.Reason  `json:"reason,omitempty"`
}

// IndeterminateResponse is the generic body for decisions that could not be made
type IndeterminateResponse struct {
	Outcome authz.Outcome `json:"outcome"`
	Error   string        `json:"error"`
}

// TenantsResponse lists the tenants an actor may act against
type TenantsResponse struct {
	ActorID   string   `json:"actor_id"`
	TenantIDs []string `json:"tenant_ids"`
}

// TenantAccessResponse answers whether an actor may act against one tenant
type TenantAccessResponse struct {
	ActorID  string `json:"actor_id"`
	TenantID string `json:"tenant_id"`
	Allowed  bool   `json:"allowed"`
}

// ChangeRoleRequest is the body of a role change
type ChangeRoleRequest struct {
	Role rbac.RoleCode `json:"role"`
}
