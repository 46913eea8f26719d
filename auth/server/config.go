package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/flokana/authgate/lib/token"
)

// Config holds every runtime setting, loaded from the environment.
//
// Secrets only ever enter through here: nothing reads the environment
// after startup, and a broken configuration stops the process before it
// accepts a single request.
type Config struct {
	Listen      string `env:"AUTHGATE_LISTEN" envDefault:":8080"`
	ExternalURL string `env:"AUTHGATE_EXTERNAL_URL" envDefault:"http://localhost:8080"`
	AppURL      string `env:"AUTHGATE_APP_URL" envDefault:"http://localhost:3000"`
	Production  bool   `env:"AUTHGATE_PRODUCTION"`

	SigningSecret    string        `env:"AUTHGATE_SIGNING_SECRET,required,unset"`
	SessionCookie    string        `env:"AUTHGATE_SESSION_COOKIE" envDefault:"session-token"`
	LegacyCookie     string        `env:"AUTHGATE_LEGACY_COOKIE" envDefault:"linkedin-session"`
	SessionValidity  time.Duration `env:"AUTHGATE_SESSION_VALIDITY" envDefault:"24h"`
	RememberValidity time.Duration `env:"AUTHGATE_REMEMBER_VALIDITY" envDefault:"720h"`

	OIDCIssuer   string `env:"AUTHGATE_OIDC_ISSUER"`
	OIDCAudience string `env:"AUTHGATE_OIDC_AUDIENCE"`

	LinkedInClientID     string `env:"AUTHGATE_LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string `env:"AUTHGATE_LINKEDIN_CLIENT_SECRET,unset"`

	StoreBackend string `env:"AUTHGATE_STORE" envDefault:"sqlite"`
	StorePath    string `env:"AUTHGATE_STORE_PATH" envDefault:"authgate.db"`

	RulesPath  string `env:"AUTHGATE_RULES"`
	SignInPath string `env:"AUTHGATE_SIGNIN_PATH" envDefault:"/auth/signin"`
	HomePath   string `env:"AUTHGATE_HOME_PATH" envDefault:"/"`

	LogLevel  string `env:"AUTHGATE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"AUTHGATE_LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"AUTHGATE_LOG_FILE"`
}

// LoadConfig parses and validates the environment.
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("could not parse environment - %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate enforces the invariants the rest of the process relies on.
func (c *Config) Validate() error {
	if len(c.SigningSecret) < token.MinSecretLength {
		return fmt.Errorf("AUTHGATE_SIGNING_SECRET must be at least %d bytes", token.MinSecretLength)
	}
	switch c.StoreBackend {
	case "sqlite", "bbolt":
	default:
		return fmt.Errorf("AUTHGATE_STORE must be sqlite or bbolt, got %q", c.StoreBackend)
	}
	if c.SessionValidity <= 0 || c.RememberValidity <= 0 {
		return fmt.Errorf("session validities must be positive")
	}
	if (c.OIDCIssuer == "") != (c.OIDCAudience == "") {
		return fmt.Errorf("AUTHGATE_OIDC_ISSUER and AUTHGATE_OIDC_AUDIENCE must be set together")
	}
	if (c.LinkedInClientID == "") != (c.LinkedInClientSecret == "") {
		return fmt.Errorf("AUTHGATE_LINKEDIN_CLIENT_ID and AUTHGATE_LINKEDIN_CLIENT_SECRET must be set together")
	}
	return nil
}

// BearerEnabled reports whether bearer token verification is configured.
func (c *Config) BearerEnabled() bool {
	return c.OIDCIssuer != ""
}

// LinkedInEnabled reports whether the OAuth handshake is configured.
func (c *Config) LinkedInEnabled() bool {
	return c.LinkedInClientID != ""
}

// RedirectURL is the absolute OAuth callback URL registered with the
// provider.
func (c *Config) RedirectURL() string {
	return c.ExternalURL + "/auth/linkedin/callback"
}
