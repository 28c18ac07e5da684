package rbac

// HasPermission reports whether role grants action on resource under ctx.
// Unknown roles, resources and actions are denials. Matching is exact and
// case-sensitive. When the matching permission carries conditions, every
// required flag must be set in ctx.
func (c *Catalog) HasPermission(role RoleCode, resource Resource, action Action, ctx Context) bool {
	r, ok := c.lookup(role)
	if !ok {
		return false
	}

	p, ok := r.Permission(resource)
	if !ok {
		return false
	}

	if !p.Allows(action) {
		return false
	}

	if p.Conditions != nil && !p.Conditions.SatisfiedBy(ctx) {
		return false
	}

	return true
}

// Explain is HasPermission with a short machine-readable reason
func (c *Catalog) Explain(role RoleCode, resource Resource, action Action, ctx Context) (bool, string) {
	r, ok := c.lookup(role)
	if !ok {
		return false, "unknown role"
	}
	p, ok := r.Permission(resource)
	if !ok {
		return false, "resource not granted"
	}
	if !p.Allows(action) {
		return false, "action not granted"
	}
	if p.Conditions != nil && !p.Conditions.SatisfiedBy(ctx) {
		return false, "conditions not met: " + p.Conditions.String()
	}
	return true, "granted by " + p.String()
}
