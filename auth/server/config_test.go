package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setValidEnv(t *testing.T) {
	t.Setenv("AUTHGATE_SIGNING_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTHGATE_OIDC_ISSUER", "https://identity.example.com")
	t.Setenv("AUTHGATE_OIDC_AUDIENCE", "app-audience")
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setValidEnv(t)

		config, err := LoadConfig()
		assert.NoError(t, err)
		assert.Equal(t, ":8080", config.Listen)
		assert.Equal(t, "session-token", config.SessionCookie)
		assert.Equal(t, "linkedin-session", config.LegacyCookie)
		assert.Equal(t, 24*time.Hour, config.SessionValidity)
		assert.Equal(t, 30*24*time.Hour, config.RememberValidity)
		assert.Equal(t, "sqlite", config.StoreBackend)
		assert.True(t, config.BearerEnabled())
		assert.False(t, config.LinkedInEnabled())
	})

	t.Run("missing secret fails", func(t *testing.T) {
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("short secret fails", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("AUTHGATE_SIGNING_SECRET", "too-short")

		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("unknown store backend fails", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("AUTHGATE_STORE", "postgres")

		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("issuer without audience fails", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("AUTHGATE_OIDC_AUDIENCE", "")

		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("linkedin client id without secret fails", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("AUTHGATE_LINKEDIN_CLIENT_ID", "client-id")

		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("redirect url follows the external url", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("AUTHGATE_EXTERNAL_URL", "https://gate.example.com")

		config, err := LoadConfig()
		assert.NoError(t, err)
		assert.Equal(t, "https://gate.example.com/auth/linkedin/callback", config.RedirectURL())
	})
}
