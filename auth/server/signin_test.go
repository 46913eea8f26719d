package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/flokana/authgate/auth/server/store"
	"github.com/flokana/authgate/lib/identity"
	"github.com/flokana/authgate/lib/token"
)

func hashPassword(t *testing.T, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NoError(t, err)
	return string(hash)
}

func newTestIssuer(t *testing.T, principals store.Store, mods ...IssuerModifier) *Issuer {
	encoder, err := token.NewEncoder(testSecret)
	assert.NoError(t, err)
	issuer, err := NewIssuer(encoder, principals, mods...)
	assert.NoError(t, err)
	return issuer
}

func TestSignIn(t *testing.T) {
	principals := newMemoryStore(
		&store.Principal{
			Subject:      "local-1",
			Email:        "dana@example.com",
			Role:         identity.RolePro,
			Tier:         identity.TierPro,
			PasswordHash: hashPassword(t, "hunter2hunter2"),
			Provider:     ProviderPassword,
		},
		&store.Principal{
			Subject:  "linkedin:abc",
			Email:    "social@example.com",
			Role:     identity.RoleFree,
			Tier:     identity.TierFree,
			Provider: ProviderLinkedIn,
		},
	)
	issuer := newTestIssuer(t, principals)
	ctx := context.Background()

	t.Run("correct credentials succeed", func(t *testing.T) {
		principal, err := issuer.SignIn(ctx, "dana@example.com", "hunter2hunter2")
		assert.NoError(t, err)
		assert.Equal(t, "local-1", principal.Subject)
		assert.Equal(t, identity.RolePro, principal.Role)
		assert.Equal(t, ProviderPassword, principal.Provider)
	})

	t.Run("email matching is case insensitive", func(t *testing.T) {
		principal, err := issuer.SignIn(ctx, "Dana@Example.COM", "hunter2hunter2")
		assert.NoError(t, err)
		assert.Equal(t, "local-1", principal.Subject)
	})

	t.Run("all failures are indistinguishable", func(t *testing.T) {
		// Unknown email, wrong password and provider-only account must
		// produce the exact same error value.
		_, unknownErr := issuer.SignIn(ctx, "nobody@example.com", "whatever")
		_, wrongErr := issuer.SignIn(ctx, "dana@example.com", "wrong-password")
		_, providerErr := issuer.SignIn(ctx, "social@example.com", "hunter2hunter2")

		assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
		assert.ErrorIs(t, wrongErr, ErrInvalidCredentials)
		assert.ErrorIs(t, providerErr, ErrInvalidCredentials)
		assert.Equal(t, unknownErr.Error(), wrongErr.Error())
		assert.Equal(t, wrongErr.Error(), providerErr.Error())
	})
}

func TestMintSession(t *testing.T) {
	issuer := newTestIssuer(t, newMemoryStore(), WithRememberValidity(30*24*time.Hour))
	encoder, err := token.NewEncoder(testSecret)
	assert.NoError(t, err)

	principal := proPrincipal()

	t.Run("default validity", func(t *testing.T) {
		signed, err := issuer.MintSession(&principal, false)
		assert.NoError(t, err)

		claims, err := encoder.Verify(signed)
		assert.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(token.DefaultValidity), claims.ExpiresAt.Time, time.Minute)
	})

	t.Run("remember me extends the session", func(t *testing.T) {
		signed, err := issuer.MintSession(&principal, true)
		assert.NoError(t, err)

		claims, err := encoder.Verify(signed)
		assert.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), claims.ExpiresAt.Time, time.Minute)
	})
}

func TestSessionCookie(t *testing.T) {
	t.Run("development cookie", func(t *testing.T) {
		issuer := newTestIssuer(t, newMemoryStore())
		cookie := issuer.SessionCookie("signed-token", false)

		assert.Equal(t, DefaultSessionCookie, cookie.Name)
		assert.Equal(t, "signed-token", cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.False(t, cookie.Secure)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Zero(t, cookie.MaxAge)
	})

	t.Run("production cookie is secure", func(t *testing.T) {
		issuer := newTestIssuer(t, newMemoryStore(), WithProductionCookies(true))
		cookie := issuer.SessionCookie("signed-token", false)
		assert.True(t, cookie.Secure)
	})

	t.Run("remember me sets max age", func(t *testing.T) {
		issuer := newTestIssuer(t, newMemoryStore(), WithRememberValidity(30*24*time.Hour))
		cookie := issuer.SessionCookie("signed-token", true)
		assert.Equal(t, int(30*24*time.Hour/time.Second), cookie.MaxAge)
	})

	t.Run("clearing expires both cookie generations", func(t *testing.T) {
		issuer := newTestIssuer(t, newMemoryStore())
		for _, name := range []string{DefaultSessionCookie, DefaultLegacyCookie} {
			cookie := issuer.ClearCookie(name)
			assert.Equal(t, name, cookie.Name)
			assert.Equal(t, -1, cookie.MaxAge)
			assert.Empty(t, cookie.Value)
		}
	})
}
