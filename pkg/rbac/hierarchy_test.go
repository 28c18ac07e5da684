package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHigherAuthority(t *testing.T) {
	tests := []struct {
		a, b RoleCode
		want bool
	}{
		{RolePlatformAdmin, RoleFranchise, true},
		{RoleFranchise, RoleClient, true},
		{RoleClient, RolePlatformAdmin, false},
		{RoleGuest, RoleEditor, false},
		{RoleEditor, RoleEditor, false},
		{"X", RoleGuest, false},
		{RolePlatformAdmin, "X", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.a)+">"+string(tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, reference.IsHigherAuthority(tt.a, tt.b))
		})
	}
}

func TestCanManageRole(t *testing.T) {
	assert.False(t, reference.CanManageRole(RoleEditor, RoleFranchise))
	assert.True(t, reference.CanManageRole(RoleFranchise, RoleEditor))
	assert.False(t, reference.CanManageRole(RoleBusiness, RoleBusiness))
	assert.False(t, reference.CanManageRole("X", RoleGuest))
}

func TestManageableRoles(t *testing.T) {
	admin := reference.ManageableRoles(RolePlatformAdmin)
	for _, code := range DefaultCatalog().Codes() {
		if code == RolePlatformAdmin {
			assert.NotContains(t, admin, code)
			continue
		}
		assert.Contains(t, admin, code)
	}

	assert.Empty(t, reference.ManageableRoles(RoleGuest))
	assert.Equal(t, []RoleCode{RoleDesigner, RoleEditor, RoleGuest}, reference.ManageableRoles(RoleClient))

	unknown := reference.ManageableRoles("X")
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)
}
