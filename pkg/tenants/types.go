package tenants

import (
	"time"
)

// Type represents the kind of tenant
type Type string

const (
	TypePlatform  Type = "platform"
	TypeFranchise Type = "franchise"
	TypeBusiness  Type = "business"
	TypeClient    Type = "client"
)

// Status represents tenant status
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
)

// Tenant is an isolated customer account
type Tenant struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           Type      `json:"type"`
	ParentTenantID *string   `json:"parent_tenant_id,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsActive reports whether authorization checks against the tenant may succeed
func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == StatusActive
}

// RelationshipType describes how a client came to a franchise
type RelationshipType string

const (
	RelationshipDirect      RelationshipType = "direct"
	RelationshipReferral    RelationshipType = "referral"
	RelationshipPartnership RelationshipType = "partnership"
)

// RelationshipStatus represents the state of a franchise-client relationship
type RelationshipStatus string

const (
	RelationshipActive     RelationshipStatus = "active"
	RelationshipSuspended  RelationshipStatus = "suspended"
	RelationshipTerminated RelationshipStatus = "terminated"
)

// RelationshipSettings are per-relationship switches
type RelationshipSettings struct {
	AllowDirectAccess bool `json:"allowDirectAccess"`
	ShareAnalytics    bool `json:"shareAnalytics"`
	CustomBranding    bool `json:"customBranding"`
}

// FranchiseClient records that a client tenant is managed by a franchise tenant.
// Records are never deleted; terminated relationships are kept for audit.
type FranchiseClient struct {
	ID                string               `json:"id"`
	FranchiseTenantID string               `json:"franchise_tenant_id"`
	ClientTenantID    string               `json:"client_tenant_id"`
	Type              RelationshipType     `json:"relationship_type"`
	Status            RelationshipStatus   `json:"status"`
	Settings          RelationshipSettings `json:"settings"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// IsActive reports whether the relationship is honored for authorization
func (fc *FranchiseClient) IsActive() bool {
	return fc != nil && fc.Status == RelationshipActive
}
