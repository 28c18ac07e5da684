// Package authz is the authorization facade. It combines the role catalog,
// the user's personal overrides and the tenant hierarchy into one decision.
//
// A decision is Allowed only when the actor exists and is active, the target
// tenant exists and is active and reachable from the actor's tenant, the
// actor's role grants the action under the computed tenant conditions, and the
// actor's override also grants it. Storage failures never become denials:
// Authorize returns an Indeterminate decision together with an error matching
// ErrIndeterminate.
//
//	d, err := authorizer.Authorize(ctx, authz.Request{
//		ActorID:        userID,
//		Resource:       rbac.ResourceProducts,
//		Action:         rbac.ActionUpdate,
//		TargetTenantID: tenantID,
//	})
//	if err != nil {
//		// fail closed, report a server error
//	}
//	if !d.Allowed() {
//		// forbidden
//	}
package authz
