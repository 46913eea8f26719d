package oauth

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/flokana/authgate/lib/khttp/kcookie"
	"github.com/flokana/authgate/lib/logger"
	"github.com/flokana/authgate/lib/token"
)

// DefaultLoginValidity bounds how long a user can sit on the provider
// login page before the handshake state expires.
const DefaultLoginValidity = 10 * time.Minute

// Exchanger drives the three-legged OAuth handshake with one provider.
type Exchanger struct {
	rng *rand.Rand
	log logger.Logger

	conf         *oauth2.Config
	stateEncoder *token.Encoder
	verifiers    []Verifier

	baseCookie    string
	loginValidity time.Duration
}

// Options collects the configuration of an Exchanger before validation.
type Options struct {
	log          logger.Logger
	conf         *oauth2.Config
	stateEncoder *token.Encoder
	factories    []VerifierFactory

	baseCookie    string
	loginValidity time.Duration
}

// Modifier applies a configuration change to the Options.
type Modifier func(*Options) error

// Modifiers is a list of Modifier applied in order.
type Modifiers []Modifier

// Apply runs all modifiers against the options.
func (mods Modifiers) Apply(o *Options) error {
	for _, m := range mods {
		if err := m(o); err != nil {
			return err
		}
	}
	return nil
}

// WithLogger sets the logger used by the exchanger and its verifiers.
func WithLogger(log logger.Logger) Modifier {
	return func(o *Options) error {
		o.log = log
		return nil
	}
}

// WithClient sets the OAuth client credentials and redirect URL.
//
// The client secret is only ever used in the server-to-server code
// exchange. It must never reach a browser.
func WithClient(id, secret, redirectURL string) Modifier {
	return func(o *Options) error {
		o.conf.ClientID = id
		o.conf.ClientSecret = secret
		o.conf.RedirectURL = redirectURL
		return nil
	}
}

// WithEndpoint sets the provider authorization and token endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) Modifier {
	return func(o *Options) error {
		o.conf.Endpoint = endpoint
		return nil
	}
}

// WithStateEncoder sets the encoder signing the handshake state.
func WithStateEncoder(encoder *token.Encoder) Modifier {
	return func(o *Options) error {
		o.stateEncoder = encoder
		return nil
	}
}

// WithVerifiers appends verifier factories run after the code exchange.
func WithVerifiers(factories ...VerifierFactory) Modifier {
	return func(o *Options) error {
		o.factories = append(o.factories, factories...)
		return nil
	}
}

// WithBaseCookie sets the string prepended to the state cookie name.
// Necessary when multiple exchangers live in the same application.
func WithBaseCookie(base string) Modifier {
	return func(o *Options) error {
		o.baseCookie = base
		return nil
	}
}

// WithLoginValidity bounds the lifetime of the handshake state.
func WithLoginValidity(validity time.Duration) Modifier {
	return func(o *Options) error {
		o.loginValidity = validity
		return nil
	}
}

// New creates an Exchanger.
//
// The rng must be seeded from a secure source (lib/srand): its output
// becomes the CSRF nonce. Missing client configuration, state encoder or
// verifiers are configuration errors reported here, at startup.
func New(rng *rand.Rand, mods ...Modifier) (*Exchanger, error) {
	opts := &Options{
		log:           logger.Go,
		conf:          &oauth2.Config{},
		loginValidity: DefaultLoginValidity,
	}
	if err := Modifiers(mods).Apply(opts); err != nil {
		return nil, err
	}

	if opts.conf.ClientID == "" || opts.conf.ClientSecret == "" {
		return nil, fmt.Errorf("oauth client id and secret must be configured")
	}
	if opts.conf.RedirectURL == "" {
		return nil, fmt.Errorf("oauth redirect url must be configured")
	}
	if opts.conf.Endpoint.AuthURL == "" || opts.conf.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("oauth provider endpoint must be configured")
	}
	if opts.stateEncoder == nil {
		return nil, fmt.Errorf("oauth state encoder must be configured")
	}
	if len(opts.factories) == 0 {
		return nil, fmt.Errorf("at least one profile verifier must be configured")
	}

	verifiers := make([]Verifier, 0, len(opts.factories))
	for _, factory := range opts.factories {
		verifier, err := factory(opts.conf)
		if err != nil {
			return nil, err
		}
		opts.conf.Scopes = append(opts.conf.Scopes, verifier.Scopes()...)
		verifiers = append(verifiers, verifier)
	}

	return &Exchanger{
		rng:           rng,
		log:           opts.log,
		conf:          opts.conf,
		stateEncoder:  opts.stateEncoder,
		verifiers:     verifiers,
		baseCookie:    opts.baseCookie,
		loginValidity: opts.loginValidity,
	}, nil
}

// StateCookieName returns the name of the cookie carrying the nonce
// between login and callback.
func (e *Exchanger) StateCookieName() string {
	return e.baseCookie + "AuthState"
}

// LoginURL computes the provider URL the user is redirected to, along
// with the nonce that must be stored client side for the callback check.
func (e *Exchanger) LoginURL(target string) (string, string, error) {
	nonce := make([]byte, 16)
	if _, err := e.rng.Read(nonce); err != nil {
		return "", "", err
	}
	encoded := hex.EncodeToString(nonce)

	state, err := e.stateEncoder.Sign(&loginState{
		RegisteredClaims: e.transientClaims(),
		Nonce:            encoded,
		Target:           target,
	})
	if err != nil {
		return "", "", err
	}

	return e.conf.AuthCodeURL(state), encoded, nil
}

// PerformLogin writes the response that starts the handshake: it stores
// the signed nonce in the state cookie and redirects to the provider.
func (e *Exchanger) PerformLogin(w http.ResponseWriter, r *http.Request, lm ...LoginModifier) error {
	options := LoginModifiers(lm).Apply(&LoginOptions{})

	url, nonce, err := e.LoginURL(options.Target)
	if err != nil {
		return err
	}

	cookieValue, err := e.stateEncoder.Sign(&stateCookie{
		RegisteredClaims: e.transientClaims(),
		Nonce:            nonce,
	})
	if err != nil {
		return err
	}

	http.SetCookie(w, options.CookieOptions.Apply(&http.Cookie{
		Name:     e.StateCookieName(),
		Value:    cookieValue,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}))

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	return nil
}

// ExtractAuth completes the handshake for a callback request.
//
// The state check runs before anything else and fails closed: if the
// cookie is missing, either token does not verify, or the nonces do not
// match, ErrStateMismatch is returned and the code is never exchanged.
func (e *Exchanger) ExtractAuth(w http.ResponseWriter, r *http.Request) (AuthData, error) {
	cookie, err := r.Cookie(e.StateCookieName())
	if err != nil || cookie == nil {
		return AuthData{}, fmt.Errorf("%w - no state cookie on callback", ErrStateMismatch)
	}

	var expected stateCookie
	if err := e.stateEncoder.Decode(cookie.Value, &expected); err != nil {
		return AuthData{}, fmt.Errorf("%w - state cookie decoding failed - %v", ErrStateMismatch, err)
	}

	query := r.URL.Query()
	var received loginState
	if err := e.stateEncoder.Decode(query.Get("state"), &received); err != nil {
		return AuthData{}, fmt.Errorf("%w - state parameter decoding failed - %v", ErrStateMismatch, err)
	}

	if subtle.ConstantTimeCompare([]byte(expected.Nonce), []byte(received.Nonce)) != 1 {
		return AuthData{}, ErrStateMismatch
	}

	// The nonce is single use, clear it regardless of what happens next.
	http.SetCookie(w, &http.Cookie{
		Name:   e.StateCookieName(),
		Path:   "/",
		MaxAge: -1,
	})

	if provErr := query.Get("error"); provErr != "" {
		return AuthData{}, fmt.Errorf("%w - authorization - provider returned %q (%s)", ErrProvider, provErr, query.Get("error_description"))
	}

	tok, err := e.conf.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		return AuthData{}, fmt.Errorf("%w - token-exchange - %v", ErrProvider, err)
	}
	if !tok.Valid() {
		return AuthData{}, fmt.Errorf("%w - token-exchange - invalid token retrieved", ErrProvider)
	}

	profile := &Profile{}
	for _, verifier := range e.verifiers {
		profile, err = verifier.Verify(e.log, profile, tok)
		if err != nil {
			return AuthData{}, fmt.Errorf("%w - profile-fetch - %v", ErrProvider, err)
		}
	}
	if !profile.Valid() {
		return AuthData{}, fmt.Errorf("%w - profile-fetch - handshake succeeded with no usable profile", ErrProvider)
	}

	return AuthData{Profile: profile, Target: received.Target}, nil
}

// PerformAuth implements the logic to handle a callback from the
// provider. Kept separate from ExtractAuth so wrappers can add cookie
// issuance on top, mirroring how the session issuer consumes it.
func (e *Exchanger) PerformAuth(w http.ResponseWriter, r *http.Request, _ ...kcookie.Modifier) (AuthData, error) {
	return e.ExtractAuth(w, r)
}

func (e *Exchanger) transientClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(e.loginValidity)),
	}
}
