package storage

import (
	"context"
	"errors"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/tenants"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

var (
	// ErrNotFound is returned (possibly wrapped) when a user, tenant or
	// relationship does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a record whose id is taken
	ErrAlreadyExists = errors.New("already exists")
)

// UserReader loads users by id
type UserReader interface {
	GetUser(ctx context.Context, id string) (*users.User, error)
}

// ActivityLogAppender appends audit records. There is no update or delete path.
type ActivityLogAppender interface {
	AppendActivityLog(ctx context.Context, record *audit.Record) error
}

// TenantWriter manages tenants and franchise relationships
type TenantWriter interface {
	CreateTenant(ctx context.Context, tenant *tenants.Tenant) error
	SetTenantStatus(ctx context.Context, tenantID string, status tenants.Status) error

	// CreateFranchiseClient creates the client tenant and its relationship to
	// the franchise in one transaction
	CreateFranchiseClient(ctx context.Context, franchiseTenantID string, client *tenants.Tenant, relType tenants.RelationshipType, settings tenants.RelationshipSettings) (*tenants.FranchiseClient, error)
	SetFranchiseClientStatus(ctx context.Context, relationshipID string, status tenants.RelationshipStatus) error
}

// UserWriter manages users
type UserWriter interface {
	CreateUser(ctx context.Context, user *users.User) error

	// UpdateUserRole replaces the user's role and override map together
	UpdateUserRole(ctx context.Context, userID string, role rbac.RoleCode, overrides users.Overrides) error
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the data-layer collaborator of the authorizer
type Store interface {
	UserReader
	tenants.Store
	ActivityLogAppender
	TenantWriter
	UserWriter
	HealthChecker

	Close() error
}

// IsNotFound reports whether err marks a missing record
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
