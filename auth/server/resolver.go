package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/flokana/authgate/auth/server/store"
	"github.com/flokana/authgate/lib/identity"
	"github.com/flokana/authgate/lib/logger"
	"github.com/flokana/authgate/lib/token"
)

// Default cookie names. The legacy name must keep matching the cookies
// minted by the previous sign-in stack until those sessions age out.
const (
	DefaultSessionCookie = "session-token"
	DefaultLegacyCookie  = "linkedin-session"
)

// Provider names recorded on resolved principals.
const (
	ProviderSession       = "session"
	ProviderLegacySession = "legacy-session"
	ProviderBearer        = "bearer"
	ProviderPassword      = "password"
	ProviderLinkedIn      = "linkedin"
)

// credentialSource is one mechanism that may authenticate a request.
//
// resolve returns (nil, nil) when the request does not carry this kind
// of credential at all, and an error when a credential is present but
// cannot be trusted. Either way the resolver moves on to the next
// source; only a non-nil principal stops the scan.
type credentialSource struct {
	name    string
	resolve func(ctx context.Context, r *http.Request) (*identity.Principal, error)
}

// Resolver reconciles the credential mechanisms a request may carry
// into one canonical principal.
//
// The precedence order is an explicit list built at construction:
// primary session cookie, then legacy session cookie, then bearer token.
// First success wins. Several credentials legitimately coexist on one
// browser during migration periods, so the order is a design choice,
// not an accident.
type Resolver struct {
	log     logger.Logger
	metrics *Metrics

	encoder    *token.Encoder
	bearer     *BearerVerifier
	principals store.Store

	sessionCookie string
	legacyCookie  string

	sources []credentialSource
}

type resolverOptions struct {
	log           logger.Logger
	metrics       *Metrics
	sessionCookie string
	legacyCookie  string
}

// ResolverModifier changes how the Resolver is configured.
type ResolverModifier func(*resolverOptions)

// WithResolverLogger sets the logger used for per-source debug logging.
func WithResolverLogger(log logger.Logger) ResolverModifier {
	return func(o *resolverOptions) {
		o.log = log
	}
}

// WithResolverMetrics attaches resolution counters.
func WithResolverMetrics(metrics *Metrics) ResolverModifier {
	return func(o *resolverOptions) {
		o.metrics = metrics
	}
}

// WithCookieNames overrides the primary and legacy cookie names.
func WithCookieNames(session, legacy string) ResolverModifier {
	return func(o *resolverOptions) {
		o.sessionCookie = session
		o.legacyCookie = legacy
	}
}

// NewResolver builds a Resolver. The bearer verifier may be nil, in
// which case Authorization headers are ignored.
func NewResolver(encoder *token.Encoder, bearer *BearerVerifier, principals store.Store, mods ...ResolverModifier) (*Resolver, error) {
	if encoder == nil {
		return nil, fmt.Errorf("resolver needs a session token encoder")
	}
	if principals == nil {
		return nil, fmt.Errorf("resolver needs a principal store")
	}

	opts := &resolverOptions{
		log:           logger.Go,
		sessionCookie: DefaultSessionCookie,
		legacyCookie:  DefaultLegacyCookie,
	}
	for _, m := range mods {
		m(opts)
	}

	r := &Resolver{
		log:           opts.log,
		metrics:       opts.metrics,
		encoder:       encoder,
		bearer:        bearer,
		principals:    principals,
		sessionCookie: opts.sessionCookie,
		legacyCookie:  opts.legacyCookie,
	}

	r.sources = []credentialSource{
		{name: ProviderSession, resolve: r.resolveCookie(opts.sessionCookie, ProviderSession)},
		{name: ProviderLegacySession, resolve: r.resolveCookie(opts.legacyCookie, ProviderLegacySession)},
	}
	if bearer != nil {
		r.sources = append(r.sources, credentialSource{name: ProviderBearer, resolve: r.resolveBearer})
	}
	return r, nil
}

// Resolve runs the credential sources in precedence order and returns
// the first principal that verifies, or nil if the request carries no
// trustworthy credential.
//
// Verification failures never abort the request: a bad credential from
// one source simply advances the scan to the next one. There is no
// anonymous sentinel - absence of a principal is a nil principal.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) *identity.Principal {
	for _, source := range r.sources {
		principal, err := source.resolve(ctx, req)
		if err != nil {
			r.log.Debugf("credential source %s rejected - %v", source.name, err)
			r.metrics.resolution(source.name, "rejected")
			continue
		}
		if principal == nil {
			r.metrics.resolution(source.name, "absent")
			continue
		}

		r.metrics.resolution(source.name, "success")
		if source.name == ProviderSession {
			r.auditLegacyCookie(req, principal)
		}
		return principal
	}
	return nil
}

// resolveCookie returns the source function verifying one of the two
// session cookie formats. Both use the same encoder and secret; only
// the cookie name differs.
func (r *Resolver) resolveCookie(name, provider string) func(ctx context.Context, req *http.Request) (*identity.Principal, error) {
	return func(ctx context.Context, req *http.Request) (*identity.Principal, error) {
		cookie, err := req.Cookie(name)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				return nil, nil
			}
			return nil, err
		}

		claims, err := r.encoder.Verify(cookie.Value)
		if err != nil {
			return nil, err
		}
		return claims.Principal(provider)
	}
}

// resolveBearer verifies an Authorization bearer token and resolves
// role and tier through the principal store.
//
// A bearer token alone never implies authorization: if the subject has
// no stored principal the request stays unauthenticated. No default
// role is ever assumed.
func (r *Resolver) resolveBearer(ctx context.Context, req *http.Request) (*identity.Principal, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return nil, nil
	}

	claims, err := r.bearer.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	record, err := r.principals.FindBySubject(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("bearer subject %s has no stored principal", claims.Subject)
		}
		return nil, fmt.Errorf("principal lookup for %s failed - %w", claims.Subject, err)
	}
	return record.Identity(ProviderBearer), nil
}

// auditLegacyCookie flags sessions where the legacy cookie disagrees
// with the primary one about the same subject. The primary answer
// stands, but a disagreement means some sign-in path minted stale
// role or tier data and deserves investigation, not silent preference.
func (r *Resolver) auditLegacyCookie(req *http.Request, primary *identity.Principal) {
	cookie, err := req.Cookie(r.legacyCookie)
	if err != nil {
		return
	}
	claims, err := r.encoder.Verify(cookie.Value)
	if err != nil {
		return
	}
	if claims.Subject != primary.Subject {
		return
	}
	if claims.Role != string(primary.Role) || claims.Tier != string(primary.Tier) {
		r.log.Warnf("session integrity: subject %s carries disagreeing session cookies - primary role=%s tier=%s, legacy role=%s tier=%s",
			primary.Subject, primary.Role, primary.Tier, claims.Role, claims.Tier)
	}
}
