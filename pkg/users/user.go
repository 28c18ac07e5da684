package users

import (
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Status represents a user's lifecycle state
type Status string

const (
	StatusActive    Status = "active"
	StatusInvited   Status = "invited"
	StatusSuspended Status = "suspended"
)

// User is an actor that can be authorized. Users are never hard-deleted;
// they move to StatusSuspended instead.
type User struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	Email       string        `json:"email,omitempty"`
	Name        string        `json:"name,omitempty"`
	Role        rbac.RoleCode `json:"role"`
	Status      Status        `json:"status"`
	Permissions Overrides     `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsActive reports whether the user may act at all
func (u *User) IsActive() bool {
	return u != nil && u.Status == StatusActive
}

// Allows checks the user's personal override for resource/action
func (u *User) Allows(resource rbac.Resource, action rbac.Action) bool {
	return Allows(u, resource, action)
}
