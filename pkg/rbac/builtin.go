package rbac

var (
	tenantScoped    = &Conditions{TenantLevel: true}
	franchiseScoped = &Conditions{FranchiseLevel: true}
	ownInTenant     = &Conditions{Own: true, TenantLevel: true}
)

func perm(resource Resource, conditions *Conditions, actions ...Action) PermissionDefinition {
	return PermissionDefinition{Resource: resource, Actions: actions, Conditions: conditions}
}

// ReferenceRoles returns the built-in role definitions
func ReferenceRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Code:        RolePlatformAdmin,
			Name:        "Platform Administrator",
			Description: "Full access to every tenant and resource",
			Level:       1,
			Permissions: []PermissionDefinition{
				perm(ResourceUsers, nil, CRUD...),
				perm(ResourceTenants, nil, CRUD...),
				perm(ResourceFranchise, nil, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManageClients),
				perm(ResourceClients, nil, CRUD...),
				perm(ResourceContent, nil, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPublish),
				perm(ResourcePages, nil, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPublish),
				perm(ResourceMedia, nil, CRUD...),
				perm(ResourceProducts, nil, CRUD...),
				perm(ResourceOrders, nil, CRUD...),
				perm(ResourceSettings, nil, CRUD...),
				perm(ResourceBranding, nil, CRUD...),
				perm(ResourceAnalytics, nil, ActionRead, ActionExport),
				perm(ResourceActivityLogs, nil, ActionRead, ActionExport),
			},
		},
		{
			Code:        RoleFranchise,
			Name:        "Franchise Owner",
			Description: "Manages a franchise tenant and its client tenants",
			Level:       2,
			Permissions: []PermissionDefinition{
				perm(ResourceUsers, tenantScoped, CRUD...),
				perm(ResourceFranchise, tenantScoped, ActionRead, ActionUpdate, ActionManageClients),
				perm(ResourceClients, franchiseScoped, CRUD...),
				perm(ResourceContent, tenantScoped, CRUD...),
				perm(ResourceProducts, tenantScoped, CRUD...),
				perm(ResourceOrders, tenantScoped, CRUD...),
				perm(ResourceSettings, tenantScoped, ActionRead, ActionUpdate),
				perm(ResourceBranding, tenantScoped, ActionRead, ActionUpdate),
				perm(ResourceAnalytics, nil, ActionRead, ActionExport),
				perm(ResourceActivityLogs, tenantScoped, ActionRead),
			},
		},
		{
			Code:        RoleBusiness,
			Name:        "Business Owner",
			Description: "Full access within a business tenant",
			Level:       3,
			Permissions: []PermissionDefinition{
				perm(ResourceUsers, tenantScoped, CRUD...),
				perm(ResourceContent, tenantScoped, CRUD...),
				perm(ResourcePages, tenantScoped, CRUD...),
				perm(ResourceMedia, tenantScoped, CRUD...),
				perm(ResourceProducts, tenantScoped, CRUD...),
				perm(ResourceOrders, tenantScoped, CRUD...),
				perm(ResourceSettings, tenantScoped, ActionRead, ActionUpdate),
				perm(ResourceBranding, tenantScoped, ActionRead, ActionUpdate),
				perm(ResourceAnalytics, tenantScoped, ActionRead),
			},
		},
		{
			Code:        RoleClient,
			Name:        "Client Administrator",
			Description: "Administers a client tenant's content and catalogue",
			Level:       4,
			Permissions: []PermissionDefinition{
				perm(ResourceUsers, tenantScoped, ActionRead, ActionUpdate),
				perm(ResourceContent, tenantScoped, CRUD...),
				perm(ResourcePages, tenantScoped, CRUD...),
				perm(ResourceMedia, tenantScoped, CRUD...),
				perm(ResourceProducts, tenantScoped, CRUD...),
				perm(ResourceOrders, tenantScoped, ActionRead, ActionUpdate),
				perm(ResourceSettings, tenantScoped, ActionRead),
			},
		},
		{
			Code:        RoleDesigner,
			Name:        "Designer",
			Description: "Builds pages and branding within a tenant",
			Level:       5,
			Permissions: []PermissionDefinition{
				perm(ResourcePages, tenantScoped, ActionCreate, ActionRead, ActionUpdate),
				perm(ResourceBranding, tenantScoped, ActionCreate, ActionRead, ActionUpdate),
				perm(ResourceMedia, tenantScoped, ActionCreate, ActionRead),
				perm(ResourceContent, tenantScoped, ActionRead),
			},
		},
		{
			Code:        RoleEditor,
			Name:        "Editor",
			Description: "Writes and publishes their own content",
			Level:       6,
			Permissions: []PermissionDefinition{
				perm(ResourceContent, ownInTenant, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPublish),
				perm(ResourcePages, tenantScoped, ActionRead, ActionUpdate),
				perm(ResourceMedia, tenantScoped, ActionCreate, ActionRead),
				perm(ResourceProducts, tenantScoped, ActionRead),
			},
		},
		{
			Code:        RoleGuest,
			Name:        "Guest",
			Description: "Read-only access and own profile",
			Level:       7,
			Permissions: []PermissionDefinition{
				perm(ResourceContent, tenantScoped, ActionRead),
				perm(ResourceProducts, tenantScoped, ActionRead),
				perm(ResourceUsers, ownInTenant, ActionRead, ActionUpdate),
			},
		},
	}
}
