package rbac

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned (wrapped in a *CatalogError) when a catalog definition fails validation
var ErrInvalidCatalog = errors.New("invalid role catalog")

// CatalogError describes why a catalog definition was rejected
type CatalogError struct {
	Role   RoleCode
	Reason string
}

func (e *CatalogError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("invalid role catalog: %s", e.Reason)
	}
	return fmt.Sprintf("invalid role catalog: role %q: %s", e.Role, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidCatalog
func (e *CatalogError) Unwrap() error { return ErrInvalidCatalog }

// RoleDefinition is the serialisable form of a role
type RoleDefinition struct {
	Code        RoleCode               `yaml:"code" json:"code"`
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description" json:"description"`
	Level       int                    `yaml:"level" json:"level"`
	Permissions []PermissionDefinition `yaml:"permissions" json:"permissions"`
}

// PermissionDefinition is the serialisable form of a permission
type PermissionDefinition struct {
	Resource   Resource    `yaml:"resource" json:"resource"`
	Actions    []Action    `yaml:"actions" json:"actions"`
	Conditions *Conditions `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

type catalogFile struct {
	Roles []RoleDefinition `yaml:"roles"`
}

// Catalog is the immutable role table. It is safe for concurrent use.
type Catalog struct {
	roles map[RoleCode]*Role
	codes []RoleCode // ordered by level, most authority first
}

// NewCatalog validates the definitions and builds a catalog
func NewCatalog(defs []RoleDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, &CatalogError{Reason: "no roles defined"}
	}

	c := &Catalog{roles: make(map[RoleCode]*Role, len(defs))}
	levels := make(map[int]RoleCode, len(defs))

	for _, def := range defs {
		if def.Code == "" {
			return nil, &CatalogError{Reason: "role with empty code"}
		}
		if _, dup := c.roles[def.Code]; dup {
			return nil, &CatalogError{Role: def.Code, Reason: "defined more than once"}
		}
		if other, dup := levels[def.Level]; dup {
			return nil, &CatalogError{Role: def.Code, Reason: fmt.Sprintf("level %d already used by role %q", def.Level, other)}
		}
		levels[def.Level] = def.Code

		role := &Role{
			Code:        def.Code,
			Name:        def.Name,
			Description: def.Description,
			Level:       def.Level,
			Permissions: make([]Permission, 0, len(def.Permissions)),
			byResource:  make(map[Resource]int, len(def.Permissions)),
		}
		for _, pd := range def.Permissions {
			if pd.Resource == "" {
				return nil, &CatalogError{Role: def.Code, Reason: "permission with empty resource"}
			}
			if _, dup := role.byResource[pd.Resource]; dup {
				return nil, &CatalogError{Role: def.Code, Reason: fmt.Sprintf("resource %q granted more than once", pd.Resource)}
			}
			if len(pd.Actions) == 0 {
				return nil, &CatalogError{Role: def.Code, Reason: fmt.Sprintf("resource %q has no actions", pd.Resource)}
			}
			role.byResource[pd.Resource] = len(role.Permissions)
			role.Permissions = append(role.Permissions, NewPermission(pd.Resource, pd.Actions, pd.Conditions))
		}

		c.roles[def.Code] = role
		c.codes = append(c.codes, def.Code)
	}

	sort.Slice(c.codes, func(i, j int) bool {
		return c.roles[c.codes[i]].Level < c.roles[c.codes[j]].Level
	})

	return c, nil
}

// LoadCatalog parses a YAML catalog document:
//
//	roles:
//	  - code: A
//	    name: Platform Administrator
//	    level: 1
//	    permissions:
//	      - resource: users
//	        actions: [create, read, update, delete]
//	        conditions: {tenantLevel: true}
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		return nil, &CatalogError{Reason: fmt.Sprintf("failed to parse: %v", err)}
	}
	return NewCatalog(file.Roles)
}

// LoadCatalogFile reads a YAML catalog from path
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the built-in reference catalog
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := NewCatalog(ReferenceRoles())
		if err != nil {
			panic(fmt.Sprintf("rbac: reference catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// lookup returns the internal role without copying. Callers must not mutate it.
func (c *Catalog) lookup(code RoleCode) (*Role, bool) {
	if c == nil {
		return nil, false
	}
	r, ok := c.roles[code]
	return r, ok
}

// Has reports whether code is defined
func (c *Catalog) Has(code RoleCode) bool {
	_, ok := c.lookup(code)
	return ok
}

// Role returns a copy of the role definition for code
func (c *Catalog) Role(code RoleCode) (Role, bool) {
	r, ok := c.lookup(code)
	if !ok {
		return Role{}, false
	}
	cp := *r
	cp.Permissions = make([]Permission, len(r.Permissions))
	for i, p := range r.Permissions {
		cp.Permissions[i] = NewPermission(p.Resource, p.Actions, p.Conditions)
	}
	return cp, true
}

// Level returns the authority level of code
func (c *Catalog) Level(code RoleCode) (int, bool) {
	r, ok := c.lookup(code)
	if !ok {
		return 0, false
	}
	return r.Level, true
}

// Codes returns every role code ordered from most to least authority
func (c *Catalog) Codes() []RoleCode {
	if c == nil {
		return nil
	}
	return append([]RoleCode(nil), c.codes...)
}

// Definitions returns the catalog in its serialisable form
func (c *Catalog) Definitions() []RoleDefinition {
	defs := make([]RoleDefinition, 0, len(c.codes))
	for _, code := range c.codes {
		r := c.roles[code]
		def := RoleDefinition{
			Code:        r.Code,
			Name:        r.Name,
			Description: r.Description,
			Level:       r.Level,
		}
		for _, p := range r.Permissions {
			pd := PermissionDefinition{
				Resource: p.Resource,
				Actions:  append([]Action(nil), p.Actions...),
			}
			if p.Conditions != nil {
				cond := *p.Conditions
				pd.Conditions = &cond
			}
			def.Permissions = append(def.Permissions, pd)
		}
		defs = append(defs, def)
	}
	return defs
}
