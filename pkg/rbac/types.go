package rbac

import (
	"sort"
	"strings"
)

// RoleCode is the short code identifying a role (e.g. "A", "F")
type RoleCode string

// Built-in role codes
const (
	RolePlatformAdmin RoleCode = "A"
	RoleFranchise     RoleCode = "F"
	RoleBusiness      RoleCode = "B"
	RoleClient        RoleCode = "C"
	RoleDesigner      RoleCode = "D"
	RoleEditor        RoleCode = "E"
	RoleGuest         RoleCode = "G"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceUsers        Resource = "users"
	ResourceTenants      Resource = "tenants"
	ResourceFranchise    Resource = "franchise"
	ResourceClients      Resource = "clients"
	ResourceContent      Resource = "content"
	ResourcePages        Resource = "pages"
	ResourceMedia        Resource = "media"
	ResourceProducts     Resource = "products"
	ResourceOrders       Resource = "orders"
	ResourceSettings     Resource = "settings"
	ResourceBranding     Resource = "branding"
	ResourceAnalytics    Resource = "analytics"
	ResourceActivityLogs Resource = "activity_logs"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate        Action = "create"
	ActionRead          Action = "read"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionPublish       Action = "publish"
	ActionExport        Action = "export"
	ActionManageClients Action = "manageClients"
)

// CRUD is the common create/read/update/delete action set.
var CRUD = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

// Conditions narrows a permission. Every flag set to true must also be true
// in the evaluation context.
type Conditions struct {
	Own            bool `json:"own,omitempty" yaml:"own,omitempty"`
	TenantLevel    bool `json:"tenantLevel,omitempty" yaml:"tenantLevel,omitempty"`
	FranchiseLevel bool `json:"franchiseLevel,omitempty" yaml:"franchiseLevel,omitempty"`
}

// IsZero reports whether no condition is required.
func (c Conditions) IsZero() bool {
	return !c.Own && !c.TenantLevel && !c.FranchiseLevel
}

// SatisfiedBy reports whether ctx meets every required condition.
func (c Conditions) SatisfiedBy(ctx Context) bool {
	if c.Own && !ctx.Own {
		return false
	}
	if c.TenantLevel && !ctx.TenantLevel {
		return false
	}
	if c.FranchiseLevel && !ctx.FranchiseLevel {
		return false
	}
	return true
}

// String returns the required flags joined with "+", or "none".
func (c Conditions) String() string {
	var parts []string
	if c.Own {
		parts = append(parts, "own")
	}
	if c.TenantLevel {
		parts = append(parts, "tenantLevel")
	}
	if c.FranchiseLevel {
		parts = append(parts, "franchiseLevel")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Context carries the facts a permission's conditions are checked against.
// Absent flags are false.
type Context struct {
	Own            bool
	TenantLevel    bool
	FranchiseLevel bool
}

// Permission grants a set of actions on one resource, optionally under conditions
type Permission struct {
	Resource   Resource
	Actions    []Action
	Conditions *Conditions

	actions map[Action]struct{}
}

// NewPermission builds a permission. A nil conditions pointer means unconditional.
func NewPermission(resource Resource, actions []Action, conditions *Conditions) Permission {
	p := Permission{
		Resource: resource,
		Actions:  append([]Action(nil), actions...),
		actions:  make(map[Action]struct{}, len(actions)),
	}
	for _, a := range actions {
		p.actions[a] = struct{}{}
	}
	if conditions != nil && !conditions.IsZero() {
		c := *conditions
		p.Conditions = &c
	}
	return p
}

// Allows reports whether action is in the permission's action set
func (p Permission) Allows(action Action) bool {
	if p.actions == nil {
		for _, a := range p.Actions {
			if a == action {
				return true
			}
		}
		return false
	}
	_, ok := p.actions[action]
	return ok
}

// String returns "resource:action1,action2[conditions]"
func (p Permission) String() string {
	actions := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		actions[i] = string(a)
	}
	s := string(p.Resource) + ":" + strings.Join(actions, ",")
	if p.Conditions != nil {
		s += "[" + p.Conditions.String() + "]"
	}
	return s
}

// Role is a catalog entry: a code, an authority level and its permissions
type Role struct {
	Code        RoleCode
	Name        string
	Description string
	Level       int
	Permissions []Permission

	byResource map[Resource]int
}

// Permission returns the role's permission for resource, if any
func (r *Role) Permission(resource Resource) (Permission, bool) {
	idx, ok := r.byResource[resource]
	if !ok {
		return Permission{}, false
	}
	return r.Permissions[idx], true
}

// Resources returns the resources the role holds permissions on, sorted
func (r *Role) Resources() []Resource {
	out := make([]Resource, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, p.Resource)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
