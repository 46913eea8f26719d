package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/flokana/authgate/auth/server/store"
	"github.com/flokana/authgate/lib/identity"
	"github.com/flokana/authgate/lib/khttp/kcookie"
	"github.com/flokana/authgate/lib/logger"
	"github.com/flokana/authgate/lib/token"
)

// ErrInvalidCredentials is the one and only error a failed sign-in
// produces. Unknown email, provider-only account and wrong password are
// indistinguishable to the caller, so responses cannot be used to probe
// which addresses have accounts. The specific reason is still logged
// server side.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash is compared against when no account matches, keeping the
// unknown-email path roughly as expensive as a real password check.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// DefaultRememberValidity is the session length of a remember-me
// sign-in.
const DefaultRememberValidity = 30 * 24 * time.Hour

// Issuer signs users in with email and password and mints their session.
type Issuer struct {
	log     logger.Logger
	metrics *Metrics

	encoder    *token.Encoder
	principals store.Store

	cookieName       string
	rememberValidity time.Duration
	production       bool
}

type issuerOptions struct {
	log              logger.Logger
	metrics          *Metrics
	cookieName       string
	rememberValidity time.Duration
	production       bool
}

// IssuerModifier changes how the Issuer is configured.
type IssuerModifier func(*issuerOptions)

// WithIssuerLogger sets the logger for sign-in audit logging.
func WithIssuerLogger(log logger.Logger) IssuerModifier {
	return func(o *issuerOptions) {
		o.log = log
	}
}

// WithIssuerMetrics attaches sign-in counters.
func WithIssuerMetrics(metrics *Metrics) IssuerModifier {
	return func(o *issuerOptions) {
		o.metrics = metrics
	}
}

// WithSessionCookieName overrides the cookie the session is stored in.
func WithSessionCookieName(name string) IssuerModifier {
	return func(o *issuerOptions) {
		o.cookieName = name
	}
}

// WithRememberValidity sets the session length of remember-me sign-ins.
func WithRememberValidity(validity time.Duration) IssuerModifier {
	return func(o *issuerOptions) {
		o.rememberValidity = validity
	}
}

// WithProductionCookies marks minted cookies Secure.
func WithProductionCookies(production bool) IssuerModifier {
	return func(o *issuerOptions) {
		o.production = production
	}
}

// NewIssuer builds an Issuer minting sessions signed by encoder for
// principals stored in principals.
func NewIssuer(encoder *token.Encoder, principals store.Store, mods ...IssuerModifier) (*Issuer, error) {
	if encoder == nil {
		return nil, fmt.Errorf("issuer needs a session token encoder")
	}
	if principals == nil {
		return nil, fmt.Errorf("issuer needs a principal store")
	}

	opts := &issuerOptions{
		log:              logger.Go,
		cookieName:       DefaultSessionCookie,
		rememberValidity: DefaultRememberValidity,
	}
	for _, m := range mods {
		m(opts)
	}

	return &Issuer{
		log:              opts.log,
		metrics:          opts.metrics,
		encoder:          encoder,
		principals:       principals,
		cookieName:       opts.cookieName,
		rememberValidity: opts.rememberValidity,
		production:       opts.production,
	}, nil
}

// SignIn checks an email and password pair against the principal store.
//
// Every failure path returns ErrInvalidCredentials and takes a bcrypt
// comparison worth of work where possible, so neither the response body
// nor coarse timing reveals whether the address exists.
func (i *Issuer) SignIn(ctx context.Context, email, password string) (*identity.Principal, error) {
	record, err := i.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			i.log.Debugf("sign-in rejected: no account for %s", store.NormalizeEmail(email))
			i.metrics.signIn("unknown-email")
			return nil, ErrInvalidCredentials
		}
		i.log.Errorf("sign-in lookup for %s failed - %v", store.NormalizeEmail(email), err)
		i.metrics.signIn("error")
		return nil, ErrInvalidCredentials
	}

	if record.PasswordHash == "" {
		i.log.Debugf("sign-in rejected: %s is a provider-only account", record.Subject)
		i.metrics.signIn("provider-only")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		i.log.Debugf("sign-in rejected: password mismatch for %s", record.Subject)
		i.metrics.signIn("bad-password")
		return nil, ErrInvalidCredentials
	}

	i.metrics.signIn("success")
	return record.Identity(ProviderPassword), nil
}

// MintSession signs a session token for the principal. remember extends
// the validity to the remember-me window.
func (i *Issuer) MintSession(principal *identity.Principal, remember bool) (string, error) {
	validity := time.Duration(0)
	if remember {
		validity = i.rememberValidity
	}
	return i.encoder.Mint(*principal, validity)
}

// SessionCookie wraps a signed session token into the session cookie.
func (i *Issuer) SessionCookie(signed string, remember bool) *http.Cookie {
	mods := kcookie.Modifiers{
		kcookie.WithPath("/"),
		kcookie.WithSecure(i.production),
		kcookie.WithSameSite(http.SameSiteLaxMode),
	}
	if remember {
		mods = append(mods, kcookie.WithMaxAge(int(i.rememberValidity/time.Second)))
	}
	return mods.Apply(&http.Cookie{
		Name:     i.cookieName,
		Value:    signed,
		HttpOnly: true,
	})
}

// ClearCookie expires a cookie by name, used at sign-out for both the
// current and the legacy session cookie.
func (i *Issuer) ClearCookie(name string) *http.Cookie {
	return kcookie.Modifiers{
		kcookie.WithPath("/"),
		kcookie.WithSecure(i.production),
		kcookie.WithMaxAge(-1),
	}.Apply(&http.Cookie{
		Name:     name,
		Value:    "",
		HttpOnly: true,
	})
}
