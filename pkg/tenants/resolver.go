package tenants

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

// Store is the read side of the data layer the resolver needs
type Store interface {
	// GetTenant returns storage.ErrNotFound (wrapped) when the tenant does not exist
	GetTenant(ctx context.Context, id string) (*Tenant, error)

	// FindActiveFranchiseClient returns nil, nil when no active relationship exists
	FindActiveFranchiseClient(ctx context.Context, franchiseTenantID, clientTenantID string) (*FranchiseClient, error)

	// ListActiveFranchiseClients returns the active relationships of a franchise
	ListActiveFranchiseClients(ctx context.Context, franchiseTenantID string) ([]FranchiseClient, error)

	// ListTenantIDs returns every tenant id in the system
	ListTenantIDs(ctx context.Context) ([]string, error)
}

// Resolver answers tenant-hierarchy questions. It holds no state besides its
// store and reads current data on every call, so a relationship whose status
// changes stops being honored on the next call.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over store
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// IsFranchiseClientOf reports whether an active relationship links the franchise to the client
func (r *Resolver) IsFranchiseClientOf(ctx context.Context, franchiseTenantID, clientTenantID string) (bool, error) {
	if franchiseTenantID == "" || clientTenantID == "" {
		return false, nil
	}

	rel, err := r.store.FindActiveFranchiseClient(ctx, franchiseTenantID, clientTenantID)
	if err != nil {
		return false, fmt.Errorf("failed to look up franchise relationship: %w", err)
	}

	// Stores are expected to filter, but a non-active record must never count.
	return rel.IsActive() &&
		rel.FranchiseTenantID == franchiseTenantID &&
		rel.ClientTenantID == clientTenantID, nil
}

// Scope is the set of tenant facts a permission check against one target
// tenant depends on
type Scope struct {
	TenantLevel    bool
	FranchiseLevel bool
	Accessible     bool
}

// ResolveScope computes the tenant-level and franchise-level flags for actor
// acting against targetTenantID, and whether the target is reachable at all.
// Accessible always agrees with CanAccessTenant.
func (r *Resolver) ResolveScope(ctx context.Context, actor *users.User, targetTenantID string) (Scope, error) {
	if actor == nil || targetTenantID == "" {
		return Scope{}, nil
	}

	var scope Scope
	if targetTenantID == actor.TenantID {
		scope.TenantLevel = true
	} else {
		isClient, err := r.IsFranchiseClientOf(ctx, actor.TenantID, targetTenantID)
		if err != nil {
			return Scope{}, err
		}
		scope.FranchiseLevel = isClient
	}

	scope.Accessible = actor.Role == rbac.RolePlatformAdmin ||
		scope.TenantLevel ||
		(actor.Role == rbac.RoleFranchise && scope.FranchiseLevel)
	return scope, nil
}

// CanAccessTenant reports whether actor may act against targetTenantID
func (r *Resolver) CanAccessTenant(ctx context.Context, actor *users.User, targetTenantID string) (bool, error) {
	if actor == nil || targetTenantID == "" {
		return false, nil
	}

	switch {
	case actor.Role == rbac.RolePlatformAdmin:
		return true, nil
	case targetTenantID == actor.TenantID:
		return true, nil
	case actor.Role == rbac.RoleFranchise:
		return r.IsFranchiseClientOf(ctx, actor.TenantID, targetTenantID)
	default:
		return false, nil
	}
}

// AccessibleTenants returns the sorted set of tenant ids actor may act against
func (r *Resolver) AccessibleTenants(ctx context.Context, actor *users.User) ([]string, error) {
	if actor == nil {
		return []string{}, nil
	}

	switch actor.Role {
	case rbac.RolePlatformAdmin:
		ids, err := r.store.ListTenantIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tenants: %w", err)
		}
		return dedupeSorted(ids), nil

	case rbac.RoleFranchise:
		rels, err := r.store.ListActiveFranchiseClients(ctx, actor.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to list franchise clients: %w", err)
		}
		ids := []string{actor.TenantID}
		for i := range rels {
			if rels[i].IsActive() && rels[i].FranchiseTenantID == actor.TenantID {
				ids = append(ids, rels[i].ClientTenantID)
			}
		}
		return dedupeSorted(ids), nil

	default:
		return []string{actor.TenantID}, nil
	}
}

func dedupeSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
