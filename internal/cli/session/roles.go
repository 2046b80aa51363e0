package session

import (
	"encoding/json"
	"sort"
	"strings"
)

// Role names issued by the backend
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// RoleSet is a set of role names. It encodes as a sorted JSON array.
type RoleSet map[string]struct{}

// NewRoleSet builds a set, skipping blank names
func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}

// ParseRoles splits the comma-separated form carried in token claims
func ParseRoles(s string) RoleSet {
	if s == "" {
		return NewRoleSet()
	}
	return NewRoleSet(strings.Split(s, ",")...)
}

// Has reports membership
func (r RoleSet) Has(role string) bool {
	_, ok := r[role]
	return ok
}

// IsAdmin reports whether the set grants admin access
func (r RoleSet) IsAdmin() bool {
	return r.Has(RoleAdmin)
}

// List returns the roles in sorted order
func (r RoleSet) List() []string {
	out := make([]string, 0, len(r))
	for role := range r {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

func (r RoleSet) clone() RoleSet {
	return NewRoleSet(r.List()...)
}

func (r RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.List())
}

func (r *RoleSet) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*r = NewRoleSet(list...)
	return nil
}
