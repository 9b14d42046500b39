package auth

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"staffline/internal/config"
)

// Wildcard grants every permission.
const Wildcard = "*"

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// NotOwnerError is returned when an actor touches a project or offer that is not theirs.
type NotOwnerError struct {
	ActorID  string
	Resource string
}

func (e NotOwnerError) Error() string {
	return fmt.Sprintf("actor %s does not own %s", e.ActorID, e.Resource)
}

// Policy maps role ids to permission sets.
type Policy struct {
	roles map[string]mapset.Set[string]
}

// NewPolicy builds a policy from the rbac section of the workspace config.
func NewPolicy(cfg *config.Config) Policy {
	p := Policy{roles: map[string]mapset.Set[string]{}}
	if cfg == nil {
		return p
	}
	for roleID := range cfg.RBAC.Roles {
		p.roles[roleID] = mapset.NewThreadUnsafeSet(cfg.RolePermissions(roleID)...)
	}
	return p
}

// Permissions returns the sorted union of permissions granted to roles.
func (p Policy) Permissions(roles []string) []string {
	union := mapset.NewThreadUnsafeSet[string]()
	for _, r := range roles {
		if set, ok := p.roles[r]; ok {
			union = union.Union(set)
		}
	}
	out := union.ToSlice()
	sort.Strings(out)
	return out
}

// Allows reports whether any of roles grants perm.
func (p Policy) Allows(roles []string, perm string) bool {
	for _, r := range roles {
		set, ok := p.roles[r]
		if !ok {
			continue
		}
		if set.Contains(Wildcard) || set.Contains(perm) {
			return true
		}
	}
	return false
}

// Known reports whether role is defined.
func (p Policy) Known(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Check returns a ForbiddenError when roles do not grant perm.
func (p Policy) Check(roles []string, perm string) error {
	if p.Allows(roles, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}

// IsAdmin reports whether roles carry the wildcard permission.
func (p Policy) IsAdmin(roles []string) bool {
	return p.Allows(roles, Wildcard)
}
