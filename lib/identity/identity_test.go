package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	t.Run("known roles round trip", func(t *testing.T) {
		for _, role := range Roles {
			parsed, err := ParseRole(string(role))
			assert.NoError(t, err)
			assert.Equal(t, role, parsed)
		}
	})

	t.Run("unknown values are rejected", func(t *testing.T) {
		for _, value := range []string{"", "free", "SUPERUSER", "ADMIN "} {
			_, err := ParseRole(value)
			assert.Error(t, err, "value %q", value)
		}
	})
}

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleFree))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleTeamAdmin.AtLeast(RolePro))
	assert.False(t, RoleFree.AtLeast(RolePro))
	assert.False(t, RolePro.AtLeast(RoleTeamAdmin))

	// An unknown role never outranks anything.
	assert.False(t, Role("MYSTERY").AtLeast(RoleFree))
}

func TestParseTier(t *testing.T) {
	for _, tier := range []Tier{TierFree, TierPro, TierTeam} {
		parsed, err := ParseTier(string(tier))
		assert.NoError(t, err)
		assert.Equal(t, tier, parsed)
	}

	_, err := ParseTier("ENTERPRISE")
	assert.Error(t, err)
}

func TestPrincipalValid(t *testing.T) {
	principal := Principal{Subject: "u1", Email: "a@b.c", Role: RoleFree, Tier: TierFree}
	assert.True(t, principal.Valid())

	for _, broken := range []Principal{
		{Email: "a@b.c", Role: RoleFree, Tier: TierFree},
		{Subject: "u1", Role: RoleFree, Tier: TierFree},
		{Subject: "u1", Email: "a@b.c", Tier: TierFree},
		{Subject: "u1", Email: "a@b.c", Role: RoleFree},
	} {
		assert.False(t, broken.Valid())
	}
}
