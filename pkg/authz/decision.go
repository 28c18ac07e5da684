package authz

import (
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Outcome is the tri-state result of an authorization check
type Outcome string

const (
	Allowed       Outcome = "allowed"
	Denied        Outcome = "denied"
	Indeterminate Outcome = "indeterminate"
)

// Reason explains an outcome
type Reason string

const (
	ReasonGranted          Reason = "granted"
	ReasonUnknownActor     Reason = "unknown_actor"
	ReasonActorInactive    Reason = "actor_inactive"
	ReasonUnknownRole      Reason = "unknown_role"
	ReasonUnknownTenant    Reason = "unknown_tenant"
	ReasonTenantInactive   Reason = "tenant_inactive"
	ReasonTenantOutOfScope Reason = "tenant_out_of_scope"
	ReasonRoleDenied       Reason = "role_denied"
	ReasonOverrideDenied   Reason = "override_denied"
	ReasonUnknownTarget    Reason = "unknown_target"
	ReasonRoleHierarchy    Reason = "role_hierarchy"
	ReasonStorageError     Reason = "storage_error"
	ReasonAuditUnavailable Reason = "audit_unavailable"
)

// Meta is request metadata copied into the activity log
type Meta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Request asks whether ActorID may perform Action on Resource.
//
// An empty TargetTenantID targets the actor's own tenant. IsOwn states that
// the concrete resource instance belongs to the actor; only the caller knows
// that. Probe requests are visibility checks and are never audited.
type Request struct {
	ActorID        string                 `json:"actor_id"`
	Resource       rbac.Resource          `json:"resource"`
	Action         rbac.Action            `json:"action"`
	TargetTenantID string                 `json:"target_tenant_id,omitempty"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	IsOwn          bool                   `json:"is_own,omitempty"`
	Probe          bool                   `json:"probe,omitempty"`
	Meta           Meta                   `json:"meta"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// Decision is the result of Authorize. Both RoleGranted and OverrideGranted
// are always evaluated once the actor and tenant checks pass.
type Decision struct {
	Outcome         Outcome       `json:"outcome"`
	Reason          Reason        `json:"reason"`
	ActorID         string        `json:"actor_id"`
	ActorRole       rbac.RoleCode `json:"actor_role,omitempty"`
	TenantID        string        `json:"tenant_id,omitempty"`
	RoleGranted     bool          `json:"role_granted"`
	OverrideGranted bool          `json:"override_granted"`
	TenantLevel     bool          `json:"tenant_level"`
	FranchiseLevel  bool          `json:"franchise_level"`
}

// Allowed reports whether the decision permits the operation
func (d Decision) Allowed() bool {
	return d.Outcome == Allowed
}

func (d Decision) deny(reason Reason) Decision {
	d.Outcome = Denied
	d.Reason = reason
	return d
}

func (d Decision) indeterminate(reason Reason) Decision {
	d.Outcome = Indeterminate
	d.Reason = reason
	return d
}
