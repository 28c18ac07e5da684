package rbac

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission_UngrantedResource(t *testing.T) {
	catalog := DefaultCatalog()
	resources := []Resource{
		ResourceUsers, ResourceTenants, ResourceFranchise, ResourceClients, ResourceContent,
		ResourcePages, ResourceMedia, ResourceProducts, ResourceOrders, ResourceSettings,
		ResourceBranding, ResourceAnalytics, ResourceActivityLogs, "unknown",
	}
	contexts := []Context{{}, {Own: true, TenantLevel: true, FranchiseLevel: true}}

	for _, code := range catalog.Codes() {
		role, ok := catalog.Role(code)
		if !assert.True(t, ok) {
			continue
		}
		granted := make(map[Resource]bool)
		for _, p := range role.Permissions {
			granted[p.Resource] = true
		}
		for _, res := range resources {
			if granted[res] {
				continue
			}
			for _, action := range append(CRUD, ActionPublish, ActionManageClients) {
				for _, ctx := range contexts {
					assert.False(t, catalog.HasPermission(code, res, action, ctx),
						"role %s should not have %s:%s", code, res, action)
				}
			}
		}
	}
}

func TestHasPermission_TenantLevelCondition(t *testing.T) {
	assert.True(t, reference.HasPermission(RoleFranchise, ResourceUsers, ActionCreate, Context{TenantLevel: true}))
	assert.False(t, reference.HasPermission(RoleFranchise, ResourceUsers, ActionCreate, Context{TenantLevel: false}))
	assert.False(t, reference.HasPermission(RoleFranchise, ResourceUsers, ActionCreate, Context{}))
}

func TestHasPermission_ConditionsAreConjunctive(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{"both satisfied", Context{Own: true, TenantLevel: true}, true},
		{"only own", Context{Own: true}, false},
		{"only tenant", Context{TenantLevel: true}, false},
		{"neither", Context{}, false},
		{"extra flags do not hurt", Context{Own: true, TenantLevel: true, FranchiseLevel: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reference.HasPermission(RoleEditor, ResourceContent, ActionUpdate, tt.ctx))
		})
	}
}

func TestHasPermission_Unconditional(t *testing.T) {
	assert.True(t, reference.HasPermission(RolePlatformAdmin, ResourceUsers, ActionDelete, Context{}))
	assert.True(t, reference.HasPermission(RoleFranchise, ResourceAnalytics, ActionExport, Context{}))
}

func TestHasPermission_FranchiseLevel(t *testing.T) {
	assert.True(t, reference.HasPermission(RoleFranchise, ResourceClients, ActionCreate, Context{FranchiseLevel: true}))
	assert.False(t, reference.HasPermission(RoleFranchise, ResourceClients, ActionCreate, Context{TenantLevel: true}))
}

func TestHasPermission_ActionNotInSet(t *testing.T) {
	assert.False(t, reference.HasPermission(RoleClient, ResourceUsers, ActionDelete, Context{TenantLevel: true}))
	assert.False(t, reference.HasPermission(RoleGuest, ResourceContent, ActionUpdate, Context{TenantLevel: true}))
}

func TestHasPermission_CaseSensitive(t *testing.T) {
	assert.False(t, reference.HasPermission(RolePlatformAdmin, "Users", ActionRead, Context{}))
	assert.False(t, reference.HasPermission(RolePlatformAdmin, ResourceUsers, "READ", Context{}))
	assert.False(t, reference.HasPermission("a", ResourceUsers, ActionRead, Context{}))
}

func TestHasPermission_UnknownRole(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.False(t, reference.HasPermission("X", ResourceUsers, ActionRead, Context{}))
		assert.False(t, reference.HasPermission("", ResourceUsers, ActionRead, Context{}))
	})

	var nilCatalog *Catalog
	assert.NotPanics(t, func() {
		assert.False(t, nilCatalog.HasPermission(RolePlatformAdmin, ResourceUsers, ActionRead, Context{}))
	})
}

func TestExplain(t *testing.T) {
	ok, reason := DefaultCatalog().Explain("X", ResourceUsers, ActionRead, Context{})
	assert.False(t, ok)
	assert.Equal(t, "unknown role", reason)

	ok, reason = DefaultCatalog().Explain(RoleFranchise, ResourceUsers, ActionCreate, Context{})
	assert.False(t, ok)
	assert.Equal(t, "conditions not met: tenantLevel", reason)

	ok, reason = DefaultCatalog().Explain(RoleFranchise, ResourceUsers, ActionCreate, Context{TenantLevel: true})
	assert.True(t, ok)
	assert.Contains(t, reason, "users:create,read,update,delete[tenantLevel]")
}

func TestHasPermission_Concurrent(t *testing.T) {
	catalog := DefaultCatalog()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := Context{TenantLevel: i%2 == 0}
			got := catalog.HasPermission(RoleBusiness, ResourceProducts, ActionCreate, ctx)
			if got != ctx.TenantLevel {
				panic(fmt.Sprintf("unexpected result %v for %+v", got, ctx))
			}
		}(i)
	}
	wg.Wait()
}
