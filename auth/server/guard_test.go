package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flokana/authgate/lib/identity"
	"github.com/flokana/authgate/lib/token"
)

func adminPrincipal() *identity.Principal {
	return &identity.Principal{
		Subject: "admin-1",
		Email:   "admin@example.com",
		Role:    identity.RoleAdmin,
		Tier:    identity.TierTeam,
	}
}

func freePrincipal() *identity.Principal {
	return &identity.Principal{
		Subject: "free-1",
		Email:   "free@example.com",
		Role:    identity.RoleFree,
		Tier:    identity.TierFree,
	}
}

func TestNewGuardValidation(t *testing.T) {
	t.Run("prefix must be a path", func(t *testing.T) {
		_, err := NewGuard([]RouteRule{{Prefix: "admin", MinRole: identity.RoleAdmin}})
		assert.Error(t, err)
	})

	t.Run("rule must grant something", func(t *testing.T) {
		_, err := NewGuard([]RouteRule{{Prefix: "/admin"}})
		assert.Error(t, err)
	})

	t.Run("unknown roles are rejected", func(t *testing.T) {
		_, err := NewGuard([]RouteRule{{Prefix: "/admin", MinRole: identity.Role("WIZARD")}})
		assert.Error(t, err)

		_, err = NewGuard([]RouteRule{{Prefix: "/admin", Roles: []identity.Role{"WIZARD"}}})
		assert.Error(t, err)
	})
}

func TestDecide(t *testing.T) {
	guard, err := NewGuard(DefaultRules())
	assert.NoError(t, err)

	t.Run("unmatched paths are public", func(t *testing.T) {
		decision, _ := guard.Decide(nil, "/about")
		assert.Equal(t, DecisionAllow, decision)
		decision, _ = guard.Decide(freePrincipal(), "/forum")
		assert.Equal(t, DecisionAllow, decision)
	})

	t.Run("anonymous on a guarded path goes to sign-in with callback", func(t *testing.T) {
		decision, target := guard.Decide(nil, "/dashboard/settings")
		assert.Equal(t, DecisionRedirectSignIn, decision)
		assert.Equal(t, "/dashboard/settings", target)
	})

	t.Run("under-privileged goes home", func(t *testing.T) {
		decision, target := guard.Decide(freePrincipal(), "/admin/users")
		assert.Equal(t, DecisionRedirectHome, decision)
		assert.Equal(t, "/", target)
	})

	t.Run("sufficient role is allowed", func(t *testing.T) {
		decision, _ := guard.Decide(adminPrincipal(), "/admin/users")
		assert.Equal(t, DecisionAllow, decision)

		decision, _ = guard.Decide(freePrincipal(), "/dashboard")
		assert.Equal(t, DecisionAllow, decision)
	})

	t.Run("same inputs always decide the same", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			decision, target := guard.Decide(freePrincipal(), "/admin/users")
			assert.Equal(t, DecisionRedirectHome, decision)
			assert.Equal(t, "/", target)
		}
	})
}

func TestDecideFirstMatch(t *testing.T) {
	// /admin/billing precedes /admin, so a TEAM_ADMIN reaches billing
	// but not the rest of the admin surface. Declaration order, not
	// prefix length, decides.
	guard, err := NewGuard([]RouteRule{
		{Prefix: "/admin/billing", Roles: []identity.Role{identity.RoleTeamAdmin, identity.RoleAdmin}},
		{Prefix: "/admin", MinRole: identity.RoleAdmin},
	})
	assert.NoError(t, err)

	teamAdmin := &identity.Principal{
		Subject: "ta-1",
		Email:   "ta@example.com",
		Role:    identity.RoleTeamAdmin,
		Tier:    identity.TierTeam,
	}

	decision, _ := guard.Decide(teamAdmin, "/admin/billing/invoices")
	assert.Equal(t, DecisionAllow, decision)

	decision, _ = guard.Decide(teamAdmin, "/admin/users")
	assert.Equal(t, DecisionRedirectHome, decision)

	// Reversed order shadows the billing rule entirely.
	shadowed, err := NewGuard([]RouteRule{
		{Prefix: "/admin", MinRole: identity.RoleAdmin},
		{Prefix: "/admin/billing", Roles: []identity.Role{identity.RoleTeamAdmin, identity.RoleAdmin}},
	})
	assert.NoError(t, err)

	decision, _ = shadowed.Decide(teamAdmin, "/admin/billing/invoices")
	assert.Equal(t, DecisionRedirectHome, decision)
}

func TestProtect(t *testing.T) {
	encoder, err := token.NewEncoder(testSecret)
	assert.NoError(t, err)
	resolver, err := NewResolver(encoder, nil, newMemoryStore())
	assert.NoError(t, err)

	guard, err := NewGuard(DefaultRules(), WithSignInPath("/auth/signin"))
	assert.NoError(t, err)

	var seen http.Header
	var seenPrincipal *identity.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		seenPrincipal = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := guard.Protect(resolver, next)

	t.Run("forwarding headers are attached", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		request.AddCookie(sessionCookie(t, DefaultSessionCookie, proPrincipal()))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "user-1", seen.Get(HeaderUserID))
		assert.Equal(t, "pro@example.com", seen.Get(HeaderEmail))
		assert.Equal(t, "PRO", seen.Get(HeaderRole))
		assert.Equal(t, "PRO", seen.Get(HeaderTier))
		assert.NotNil(t, seenPrincipal)
		assert.Equal(t, "user-1", seenPrincipal.Subject)
	})

	t.Run("client supplied headers are stripped", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/about", nil)
		request.Header.Set(HeaderUserID, "forged-admin")
		request.Header.Set(HeaderRole, "ADMIN")

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Empty(t, seen.Get(HeaderUserID))
		assert.Empty(t, seen.Get(HeaderRole))
	})

	t.Run("header forgery does not bypass the guard", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		request.Header.Set(HeaderUserID, "forged-admin")
		request.Header.Set(HeaderRole, "ADMIN")

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusTemporaryRedirect, recorder.Code)
	})

	t.Run("anonymous is redirected to sign-in with callback", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/dashboard/settings", nil)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusTemporaryRedirect, recorder.Code)
		location, err := url.Parse(recorder.Header().Get("Location"))
		assert.NoError(t, err)
		assert.Equal(t, "/auth/signin", location.Path)
		assert.Equal(t, "/dashboard/settings", location.Query().Get("callback"))
	})

	t.Run("under-privileged is redirected home", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		request.AddCookie(sessionCookie(t, DefaultSessionCookie, proPrincipal()))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusTemporaryRedirect, recorder.Code)
		assert.Equal(t, "/", recorder.Header().Get("Location"))
	})
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
- prefix: /admin
  min_role: ADMIN
- prefix: /dashboard
  roles: [FREE, PRO]
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rules, err := LoadRules(path)
	assert.NoError(t, err)
	assert.Len(t, rules, 2)
	assert.Equal(t, "/admin", rules[0].Prefix)
	assert.Equal(t, identity.RoleAdmin, rules[0].MinRole)
	assert.Equal(t, []identity.Role{identity.RoleFree, identity.RolePro}, rules[1].Roles)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
