package oauth

import (
	"golang.org/x/oauth2"

	"github.com/flokana/authgate/lib/logger"
)

// Verifier is an object capable of turning an oauth2.Token into profile
// information after the code exchange.
//
// Verifiers run in order and can each add information retrieved from the
// remote provider to the profile, using provider specific mechanisms.
// For example, a verifier can call the userinfo endpoint, or check the
// asserted email domain against an allow list.
type Verifier interface {
	// Scopes returns the scopes this verifier needs requested at login.
	Scopes() []string

	// Verify inspects the token and fills in or checks the profile.
	Verify(log logger.Logger, profile *Profile, tok *oauth2.Token) (*Profile, error)
}

// VerifierFactory builds a Verifier bound to an oauth2 configuration.
type VerifierFactory func(conf *oauth2.Config) (Verifier, error)

// OptionalVerifier wraps a Verifier so that its failures are logged and
// ignored instead of failing the handshake. Useful for enrichment steps
// that should not block sign-in.
type OptionalVerifier struct {
	inner Verifier
}

func (ov *OptionalVerifier) Scopes() []string {
	return ov.inner.Scopes()
}

func (ov *OptionalVerifier) Verify(log logger.Logger, profile *Profile, tok *oauth2.Token) (*Profile, error) {
	result, err := ov.inner.Verify(log, profile, tok)
	if err != nil {
		user := "<unknown>"
		if profile != nil && profile.Email != "" {
			user = profile.Email
		}

		log.Errorf("for user %s - ignored verifier %T - error: %s", user, ov.inner, err)
		return profile, nil
	}
	return result, nil
}

// NewOptionalVerifierFactory wraps a factory so the verifiers it builds
// become optional.
func NewOptionalVerifierFactory(factory VerifierFactory) VerifierFactory {
	return func(conf *oauth2.Config) (Verifier, error) {
		inner, err := factory(conf)
		if err != nil {
			return nil, err
		}
		return &OptionalVerifier{inner: inner}, nil
	}
}
