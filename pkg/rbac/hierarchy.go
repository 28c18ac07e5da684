package rbac

// IsHigherAuthority reports whether a has strictly more authority than b.
// Either role being unknown yields false.
func (c *Catalog) IsHigherAuthority(a, b RoleCode) bool {
	la, ok := c.Level(a)
	if !ok {
		return false
	}
	lb, ok := c.Level(b)
	if !ok {
		return false
	}
	return la < lb
}

// CanManageRole reports whether a user holding manager may administer users holding target
func (c *Catalog) CanManageRole(manager, target RoleCode) bool {
	return c.IsHigherAuthority(manager, target)
}

// ManageableRoles returns every role with strictly less authority than role,
// ordered from most to least authority. Unknown roles manage nothing.
func (c *Catalog) ManageableRoles(role RoleCode) []RoleCode {
	level, ok := c.Level(role)
	if !ok {
		return []RoleCode{}
	}
	out := []RoleCode{}
	for _, code := range c.codes {
		if c.roles[code].Level > level {
			out = append(out, code)
		}
	}
	return out
}
