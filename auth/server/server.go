// Package server assembles the authentication layer: credential
// resolution, route guarding, password and OAuth sign-in, and the
// reverse proxy handing allowed requests to the application.
package server

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/kataras/muxie"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flokana/authgate/auth/server/store"
	boltstore "github.com/flokana/authgate/auth/server/store/bbolt"
	sqlitestore "github.com/flokana/authgate/auth/server/store/sqlite"
	"github.com/flokana/authgate/lib/khttp/krequestlog"
	"github.com/flokana/authgate/lib/logger"
	"github.com/flokana/authgate/lib/oauth"
	"github.com/flokana/authgate/lib/oauth/olinkedin"
	"github.com/flokana/authgate/lib/srand"
	"github.com/flokana/authgate/lib/token"
)

// Server ties the auth components to their HTTP surface.
type Server struct {
	log     logger.Logger
	config  *Config
	metrics *Metrics

	principals store.Store
	resolver   *Resolver
	guard      *Guard
	issuer     *Issuer
	exchanger  *oauth.Exchanger
	minter     *Minter

	handler http.Handler
}

type serverOptions struct {
	log        logger.Logger
	registerer prometheus.Registerer
	principals store.Store
	upstream   http.Handler
	rng        *rand.Rand
}

// ServerModifier changes how the Server is assembled.
type ServerModifier func(*serverOptions)

// WithServerLogger sets the logger shared by all components.
func WithServerLogger(log logger.Logger) ServerModifier {
	return func(o *serverOptions) {
		o.log = log
	}
}

// WithRegisterer overrides the prometheus registry, used by tests to
// avoid global registration collisions.
func WithRegisterer(registerer prometheus.Registerer) ServerModifier {
	return func(o *serverOptions) {
		o.registerer = registerer
	}
}

// WithPrincipalStore injects an already open principal store instead of
// opening one from the configuration.
func WithPrincipalStore(principals store.Store) ServerModifier {
	return func(o *serverOptions) {
		o.principals = principals
	}
}

// WithUpstream overrides the handler guarded requests are forwarded to.
// The default is a reverse proxy to the configured application URL.
func WithUpstream(upstream http.Handler) ServerModifier {
	return func(o *serverOptions) {
		o.upstream = upstream
	}
}

// WithRand overrides the nonce source of the OAuth exchanger.
func WithRand(rng *rand.Rand) ServerModifier {
	return func(o *serverOptions) {
		o.rng = rng
	}
}

// New assembles a Server from the configuration.
//
// All external preconditions are checked here: the store must open, the
// identity platform must answer discovery, and the OAuth client must be
// complete. A server that constructs successfully can serve requests.
func New(ctx context.Context, config *Config, mods ...ServerModifier) (*Server, error) {
	opts := &serverOptions{
		log:        logger.Go,
		registerer: prometheus.DefaultRegisterer,
		rng:        rand.New(srand.Source),
	}
	for _, m := range mods {
		m(opts)
	}
	log := opts.log

	metrics := NewMetrics(opts.registerer)

	encoder, err := token.NewEncoder([]byte(config.SigningSecret), token.WithValidity(config.SessionValidity))
	if err != nil {
		return nil, err
	}

	principals := opts.principals
	if principals == nil {
		switch config.StoreBackend {
		case "sqlite":
			principals, err = sqlitestore.Open(config.StorePath)
		case "bbolt":
			principals, err = boltstore.Open(config.StorePath)
		default:
			err = fmt.Errorf("unknown store backend %q", config.StoreBackend)
		}
		if err != nil {
			return nil, fmt.Errorf("could not open principal store - %w", err)
		}
	}

	var bearer *BearerVerifier
	if config.BearerEnabled() {
		bearer, err = NewBearerVerifier(ctx, config.OIDCIssuer, config.OIDCAudience)
		if err != nil {
			return nil, err
		}
	}

	resolver, err := NewResolver(encoder, bearer, principals,
		WithResolverLogger(log),
		WithResolverMetrics(metrics),
		WithCookieNames(config.SessionCookie, config.LegacyCookie))
	if err != nil {
		return nil, err
	}

	rules := DefaultRules()
	if config.RulesPath != "" {
		rules, err = LoadRules(config.RulesPath)
		if err != nil {
			return nil, err
		}
	}
	guard, err := NewGuard(rules,
		WithSignInPath(config.SignInPath),
		WithHomePath(config.HomePath),
		WithGuardLogger(log),
		WithGuardMetrics(metrics))
	if err != nil {
		return nil, err
	}

	issuer, err := NewIssuer(encoder, principals,
		WithIssuerLogger(log),
		WithIssuerMetrics(metrics),
		WithSessionCookieName(config.SessionCookie),
		WithRememberValidity(config.RememberValidity),
		WithProductionCookies(config.Production))
	if err != nil {
		return nil, err
	}

	var exchanger *oauth.Exchanger
	var minter *Minter
	if config.LinkedInEnabled() {
		exchanger, err = oauth.New(opts.rng,
			olinkedin.Defaults(),
			oauth.WithLogger(log),
			oauth.WithClient(config.LinkedInClientID, config.LinkedInClientSecret, config.RedirectURL()),
			oauth.WithStateEncoder(encoder))
		if err != nil {
			return nil, err
		}

		audience := config.OIDCAudience
		if audience == "" {
			audience = "authgate"
		}
		minter, err = NewMinter(encoder, audience)
		if err != nil {
			return nil, err
		}
	}

	upstream := opts.upstream
	if upstream == nil {
		app, err := url.Parse(config.AppURL)
		if err != nil {
			return nil, fmt.Errorf("application url %q is invalid - %w", config.AppURL, err)
		}
		upstream = httputil.NewSingleHostReverseProxy(app)
	}

	s := &Server{
		log:        log,
		config:     config,
		metrics:    metrics,
		principals: principals,
		resolver:   resolver,
		guard:      guard,
		issuer:     issuer,
		exchanger:  exchanger,
		minter:     minter,
	}

	mux := muxie.NewMux()
	mux.Handle("/auth/login", muxie.Methods().HandleFunc(http.MethodPost, s.handleSignIn))
	mux.Handle("/auth/logout", muxie.Methods().HandleFunc(http.MethodPost, s.handleSignOut))
	mux.Handle("/auth/linkedin/start", muxie.Methods().HandleFunc(http.MethodGet, s.handleOAuthStart))
	mux.Handle("/auth/linkedin/callback", muxie.Methods().HandleFunc(http.MethodGet, s.handleOAuthCallback))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/*path", guard.Protect(resolver, upstream))

	s.handler = krequestlog.NewHandler(mux, krequestlog.WithLogger(log))
	return s, nil
}

// Handler returns the full HTTP surface of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Resolver exposes the credential resolver, for embedding the auth layer
// into another mux.
func (s *Server) Resolver() *Resolver {
	return s.resolver
}

// Guard exposes the route guard, for embedding the auth layer into
// another mux.
func (s *Server) Guard() *Guard {
	return s.guard
}

// Close releases the principal store.
func (s *Server) Close() error {
	return s.principals.Close()
}

// ListenAndServe runs the server on the configured address until the
// context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.config.Listen,
		Handler: s.handler,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Infof("authgate listening on %s, proxying to %s", s.config.Listen, s.config.AppURL)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		s.log.Infof("shutting down")
		return httpServer.Shutdown(context.Background())
	}
}
