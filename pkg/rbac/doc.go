// Package rbac holds the role catalog and the pure permission evaluation
// functions built on it.
//
// # Overview
//
// A Catalog maps role codes to a Role: a display name, an authority level
// (lower means more authority) and at most one Permission per resource. A
// Permission lists the actions it allows and may carry Conditions drawn from
// three flags:
//
//	own            - the actor owns the target resource instance
//	tenantLevel    - the target lives in the actor's own tenant
//	franchiseLevel - the target tenant is an active client of the actor's franchise
//
// Conditions are conjunctive: every flag a permission requires must be true
// in the evaluation Context. A permission without conditions is unconditional.
//
// # Built-In Roles
//
//	A  Platform Administrator  level 1
//	F  Franchise Owner         level 2
//	B  Business Owner          level 3
//	C  Client Administrator    level 4
//	D  Designer                level 5
//	E  Editor                  level 6
//	G  Guest                   level 7
//
// # Usage
//
//	catalog := rbac.DefaultCatalog()
//	ok := catalog.HasPermission(rbac.RoleFranchise, rbac.ResourceUsers, rbac.ActionCreate,
//		rbac.Context{TenantLevel: true})
//
//	catalog.CanManageRole(rbac.RoleFranchise, rbac.RoleEditor) // true
//	catalog.ManageableRoles(rbac.RoleClient)                  // [D E G]
//
// A catalog can also be loaded once at start-up from YAML with LoadCatalog or
// LoadCatalogFile. Catalogs expose no mutators, so a single instance is shared
// by every request without locking. Unknown role codes are never an error at
// evaluation time: they simply hold no permissions and no authority.
package rbac
