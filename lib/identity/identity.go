// Package identity defines the canonical representation of an
// authenticated user, independent of the credential that proved it.
package identity

import "fmt"

// Role is the coarse access level gating route access.
//
// The set is closed on purpose: a role that does not parse is an
// authentication failure, never a silent pass-through.
type Role string

const (
	RoleFree      Role = "FREE"
	RolePro       Role = "PRO"
	RoleTeamAdmin Role = "TEAM_ADMIN"
	RoleAdmin     Role = "ADMIN"
)

// Roles lists all valid roles, lowest privilege first.
var Roles = []Role{RoleFree, RolePro, RoleTeamAdmin, RoleAdmin}

// ParseRole converts a string into a Role, rejecting unknown values.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleFree, RolePro, RoleTeamAdmin, RoleAdmin:
		return Role(value), nil
	}
	return "", fmt.Errorf("unknown role %q", value)
}

// Level returns the position of the role in the privilege hierarchy.
func (r Role) Level() int {
	for ix, role := range Roles {
		if role == r {
			return ix + 1
		}
	}
	return 0
}

// AtLeast returns true if the role grants at least the privileges of other.
func (r Role) AtLeast(other Role) bool {
	return r.Level() >= other.Level()
}

// Tier is the billing plan classification. Distinct from Role: a TEAM_ADMIN
// and a regular member of the same team share the TEAM tier.
type Tier string

const (
	TierFree Tier = "FREE"
	TierPro  Tier = "PRO"
	TierTeam Tier = "TEAM"
)

// ParseTier converts a string into a Tier, rejecting unknown values.
func ParseTier(value string) (Tier, error) {
	switch Tier(value) {
	case TierFree, TierPro, TierTeam:
		return Tier(value), nil
	}
	return "", fmt.Errorf("unknown tier %q", value)
}

// Principal is the resolved, authenticated identity for a request.
//
// It is derived fresh from the request credentials on every request and
// never cached across requests, so there is no stale authorization to
// invalidate.
type Principal struct {
	// Subject is the globally unique identifier of the user.
	Subject string

	// Email the user registered or authenticated with.
	Email string

	// DisplayName is the name the user goes by. May change over time.
	DisplayName string

	Role Role
	Tier Tier

	// Provider names the credential mechanism that proved this identity:
	// "session", "legacy-session", "bearer", "password" or "linkedin".
	Provider string
}

// Valid returns true if the principal carries the fields every consumer
// relies on. Role and Tier must always be resolved, see the resolver.
func (p *Principal) Valid() bool {
	return p.Subject != "" && p.Email != "" && p.Role != "" && p.Tier != ""
}
