package users

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Grant is a per-user override for one resource. It is one of
// BooleanGrant, ActionSetGrant, NamedCapabilityGrant or UnrecognizedGrant.
type Grant interface {
	isGrant()
}

// BooleanGrant allows or denies every action on the resource
type BooleanGrant bool

// ActionSetGrant allows exactly the listed actions
type ActionSetGrant []rbac.Action

// NamedCapabilityGrant maps capability names (matched against the action) to on/off
type NamedCapabilityGrant map[string]bool

// UnrecognizedGrant keeps an override whose stored shape is not understood.
// It never allows anything.
type UnrecognizedGrant json.RawMessage

func (BooleanGrant) isGrant()         {}
func (ActionSetGrant) isGrant()       {}
func (NamedCapabilityGrant) isGrant() {}
func (UnrecognizedGrant) isGrant()    {}

// Contains reports whether action is listed
func (g ActionSetGrant) Contains(action rbac.Action) bool {
	for _, a := range g {
		if a == action {
			return true
		}
	}
	return false
}

// Overrides is the user's permission map keyed by resource
type Overrides map[rbac.Resource]Grant

// Allows is the override gate: it consults only the user's own data and
// never the role catalog. A missing override denies.
func Allows(u *User, resource rbac.Resource, action rbac.Action) bool {
	if u == nil || u.Permissions == nil {
		return false
	}

	grant, ok := u.Permissions[resource]
	if !ok {
		return false
	}

	switch g := grant.(type) {
	case BooleanGrant:
		return bool(g)
	case ActionSetGrant:
		return g.Contains(action)
	case NamedCapabilityGrant:
		return g[string(action)]
	case UnrecognizedGrant:
		return false
	default:
		return false
	}
}

// Clone returns a deep copy: no grant shares a backing slice or map with o
func (o Overrides) Clone() Overrides {
	if o == nil {
		return nil
	}
	out := make(Overrides, len(o))
	for resource, grant := range o {
		switch g := grant.(type) {
		case ActionSetGrant:
			out[resource] = append(ActionSetGrant(nil), g...)
		case NamedCapabilityGrant:
			caps := make(NamedCapabilityGrant, len(g))
			for name, on := range g {
				caps[name] = on
			}
			out[resource] = caps
		case UnrecognizedGrant:
			out[resource] = append(UnrecognizedGrant(nil), g...)
		default:
			out[resource] = grant
		}
	}
	return out
}

// DefaultOverrides builds the override map a user receives on being
// assigned role: one action set per role permission.
func DefaultOverrides(role rbac.Role) Overrides {
	out := make(Overrides, len(role.Permissions))
	for _, p := range role.Permissions {
		out[p.Resource] = ActionSetGrant(append([]rbac.Action(nil), p.Actions...))
	}
	return out
}

// UnmarshalJSON decodes the stored document shape, where each value is a
// boolean, an array of action names or an object of named capabilities.
func (o *Overrides) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("permissions must be an object: %w", err)
	}

	out := make(Overrides, len(raw))
	for resource, value := range raw {
		out[rbac.Resource(resource)] = decodeGrant(value)
	}
	*o = out
	return nil
}

func decodeGrant(value json.RawMessage) Grant {
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return BooleanGrant(b)
	}

	var actions []string
	if err := json.Unmarshal(value, &actions); err == nil && actions != nil {
		set := make(ActionSetGrant, len(actions))
		for i, a := range actions {
			set[i] = rbac.Action(a)
		}
		return set
	}

	var caps map[string]bool
	if err := json.Unmarshal(value, &caps); err == nil && caps != nil {
		return NamedCapabilityGrant(caps)
	}

	return UnrecognizedGrant(append(json.RawMessage(nil), value...))
}

// MarshalJSON writes the same loosely-typed shape UnmarshalJSON reads
func (o Overrides) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}

	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	out := make(map[string]json.RawMessage, len(o))
	for _, k := range keys {
		var (
			data []byte
			err  error
		)
		switch g := o[rbac.Resource(k)].(type) {
		case BooleanGrant:
			data, err = json.Marshal(bool(g))
		case ActionSetGrant:
			data, err = json.Marshal([]rbac.Action(g))
		case NamedCapabilityGrant:
			data, err = json.Marshal(map[string]bool(g))
		case UnrecognizedGrant:
			data = []byte(g)
		default:
			data = []byte("null")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to marshal override %q: %w", k, err)
		}
		out[k] = data
	}
	return json.Marshal(out)
}
