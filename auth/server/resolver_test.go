package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/flokana/authgate/auth/server/store"
	"github.com/flokana/authgate/lib/identity"
	"github.com/flokana/authgate/lib/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// memoryStore is an in-memory store.Store for tests.
type memoryStore struct {
	bySubject map[string]*store.Principal
	failWith  error
}

func newMemoryStore(records ...*store.Principal) *memoryStore {
	m := &memoryStore{bySubject: map[string]*store.Principal{}}
	for _, record := range records {
		m.bySubject[record.Subject] = record
	}
	return m
}

func (m *memoryStore) FindBySubject(ctx context.Context, subject string) (*store.Principal, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	record, ok := m.bySubject[subject]
	if !ok {
		return nil, store.ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) FindByEmail(ctx context.Context, email string) (*store.Principal, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, record := range m.bySubject {
		if record.Email == store.NormalizeEmail(email) {
			return record, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memoryStore) Upsert(ctx context.Context, record *store.Principal) error {
	if m.failWith != nil {
		return m.failWith
	}
	stored := *record
	stored.Email = store.NormalizeEmail(record.Email)
	m.bySubject[stored.Subject] = &stored
	return nil
}

func (m *memoryStore) Close() error { return nil }

// passthroughKeySet decodes the JWT payload without checking the
// signature, letting tests mint bearer tokens with any key. The claim
// checks (issuer, audience, expiry) still run in the verifier.
type passthroughKeySet struct{}

func (passthroughKeySet) VerifySignature(ctx context.Context, raw string) ([]byte, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed token")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

const (
	testIssuer   = "https://identity.example.com"
	testAudience = "authgate-test"
)

func mintBearer(t *testing.T, subject string, expiry time.Time) string {
	claims := jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            testAudience,
		"sub":            subject,
		"exp":            expiry.Unix(),
		"iat":            time.Now().Add(-time.Minute).Unix(),
		"email":          "bearer@example.com",
		"email_verified": true,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("any-key-the-keyset-ignores"))
	assert.NoError(t, err)
	return raw
}

func newTestResolver(t *testing.T, principals store.Store) *Resolver {
	encoder, err := token.NewEncoder(testSecret)
	assert.NoError(t, err)

	bearer, err := NewBearerVerifier(context.Background(), testIssuer, testAudience,
		WithKeySet(passthroughKeySet{}), WithSigningAlgorithms("HS256"))
	assert.NoError(t, err)

	resolver, err := NewResolver(encoder, bearer, principals)
	assert.NoError(t, err)
	return resolver
}

func sessionCookie(t *testing.T, name string, principal identity.Principal) *http.Cookie {
	encoder, err := token.NewEncoder(testSecret)
	assert.NoError(t, err)
	signed, err := encoder.Mint(principal, 0)
	assert.NoError(t, err)
	return &http.Cookie{Name: name, Value: signed}
}

func proPrincipal() identity.Principal {
	return identity.Principal{
		Subject: "user-1",
		Email:   "pro@example.com",
		Role:    identity.RolePro,
		Tier:    identity.TierPro,
	}
}

func TestResolvePrecedence(t *testing.T) {
	stored := &store.Principal{
		Subject: "bearer-user",
		Email:   "bearer@example.com",
		Role:    identity.RoleAdmin,
		Tier:    identity.TierTeam,
	}
	resolver := newTestResolver(t, newMemoryStore(stored))

	legacy := proPrincipal()
	legacy.Subject = "legacy-user"

	t.Run("primary cookie wins over everything", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		request.AddCookie(sessionCookie(t, DefaultSessionCookie, proPrincipal()))
		request.AddCookie(sessionCookie(t, DefaultLegacyCookie, legacy))
		request.Header.Set("Authorization", "Bearer "+mintBearer(t, "bearer-user", time.Now().Add(time.Hour)))

		principal := resolver.Resolve(request.Context(), request)
		assert.NotNil(t, principal)
		assert.Equal(t, "user-1", principal.Subject)
		assert.Equal(t, ProviderSession, principal.Provider)
	})

	t.Run("legacy cookie wins over bearer", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		request.AddCookie(sessionCookie(t, DefaultLegacyCookie, legacy))
		request.Header.Set("Authorization", "Bearer "+mintBearer(t, "bearer-user", time.Now().Add(time.Hour)))

		principal := resolver.Resolve(request.Context(), request)
		assert.NotNil(t, principal)
		assert.Equal(t, "legacy-user", principal.Subject)
		assert.Equal(t, ProviderLegacySession, principal.Provider)
	})

	t.Run("bearer is the last resort", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		request.Header.Set("Authorization", "Bearer "+mintBearer(t, "bearer-user", time.Now().Add(time.Hour)))

		principal := resolver.Resolve(request.Context(), request)
		assert.NotNil(t, principal)
		assert.Equal(t, "bearer-user", principal.Subject)
		assert.Equal(t, identity.RoleAdmin, principal.Role)
		assert.Equal(t, identity.TierTeam, principal.Tier)
		assert.Equal(t, ProviderBearer, principal.Provider)
	})

	t.Run("no credentials means nil", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		assert.Nil(t, resolver.Resolve(request.Context(), request))
	})
}

func TestResolveFailClosed(t *testing.T) {
	resolver := newTestResolver(t, newMemoryStore())

	t.Run("garbage cookies resolve to nil", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "garbage"})
		request.AddCookie(&http.Cookie{Name: DefaultLegacyCookie, Value: "garbage"})
		assert.Nil(t, resolver.Resolve(request.Context(), request))
	})

	t.Run("bad primary falls through to good legacy", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "garbage"})
		request.AddCookie(sessionCookie(t, DefaultLegacyCookie, proPrincipal()))

		principal := resolver.Resolve(request.Context(), request)
		assert.NotNil(t, principal)
		assert.Equal(t, ProviderLegacySession, principal.Provider)
	})

	t.Run("expired bearer resolves to nil", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer "+mintBearer(t, "bearer-user", time.Now().Add(-time.Hour)))
		assert.Nil(t, resolver.Resolve(request.Context(), request))
	})

	t.Run("non bearer authorization is ignored", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assert.Nil(t, resolver.Resolve(request.Context(), request))
	})

	t.Run("unknown role in a cookie resolves to nil", func(t *testing.T) {
		encoder, err := token.NewEncoder(testSecret)
		assert.NoError(t, err)
		signed, err := encoder.Sign(&token.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Email: "pro@example.com",
			Role:  "OVERLORD",
			Tier:  "PRO",
		})
		assert.NoError(t, err)

		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: signed})
		assert.Nil(t, resolver.Resolve(request.Context(), request))
	})
}

func TestResolveBearerNeedsStoredPrincipal(t *testing.T) {
	principals := newMemoryStore()
	resolver := newTestResolver(t, principals)

	t.Run("valid token with no record resolves to nil", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer "+mintBearer(t, "stranger", time.Now().Add(time.Hour)))
		assert.Nil(t, resolver.Resolve(request.Context(), request))
	})

	t.Run("store failure resolves to nil", func(t *testing.T) {
		principals.failWith = errors.New("store is down")
		defer func() { principals.failWith = nil }()

		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer "+mintBearer(t, "stranger", time.Now().Add(time.Hour)))
		assert.Nil(t, resolver.Resolve(request.Context(), request))
	})
}

func TestResolveWithoutBearerVerifier(t *testing.T) {
	encoder, err := token.NewEncoder(testSecret)
	assert.NoError(t, err)
	resolver, err := NewResolver(encoder, nil, newMemoryStore())
	assert.NoError(t, err)

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Authorization", "Bearer "+mintBearer(t, "bearer-user", time.Now().Add(time.Hour)))
	assert.Nil(t, resolver.Resolve(request.Context(), request))
}

func TestDualCookieAudit(t *testing.T) {
	captured := &captureLogger{}
	encoder, err := token.NewEncoder(testSecret)
	assert.NoError(t, err)
	resolver, err := NewResolver(encoder, nil, newMemoryStore(), WithResolverLogger(captured))
	assert.NoError(t, err)

	stale := proPrincipal()
	stale.Role = identity.RoleFree
	stale.Tier = identity.TierFree

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(sessionCookie(t, DefaultSessionCookie, proPrincipal()))
	request.AddCookie(sessionCookie(t, DefaultLegacyCookie, stale))

	principal := resolver.Resolve(request.Context(), request)
	assert.NotNil(t, principal)

	// The primary cookie stands, and the disagreement is logged.
	assert.Equal(t, identity.RolePro, principal.Role)
	assert.Equal(t, 1, len(captured.warnings))
	assert.Contains(t, captured.warnings[0], "disagreeing")
}

// captureLogger records warnings for assertions.
type captureLogger struct {
	warnings []string
}

func (c *captureLogger) Debugf(format string, args ...interface{}) {}
func (c *captureLogger) Infof(format string, args ...interface{})  {}
func (c *captureLogger) Warnf(format string, args ...interface{}) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}
func (c *captureLogger) Errorf(format string, args ...interface{}) {}
func (c *captureLogger) SetOutput(writer io.Writer)                {}
