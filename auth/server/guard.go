package server

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/flokana/authgate/lib/identity"
	"github.com/flokana/authgate/lib/logger"
)

// Trusted forwarding headers set by the guard on allowed requests.
//
// Downstream handlers must only ever trust these when the guard itself
// set them: the guard strips any client supplied copy before deciding,
// and a missing HeaderUserID always means unauthenticated no matter
// what other auth-looking headers are present.
const (
	HeaderUserID = "x-user-id"
	HeaderEmail  = "x-user-email"
	HeaderRole   = "x-user-role"
	HeaderTier   = "x-user-tier"
)

var forwardingHeaders = []string{HeaderUserID, HeaderEmail, HeaderRole, HeaderTier}

// RouteRule maps a path prefix to the roles allowed through.
//
// Either Roles or MinRole must be set. MinRole admits any role at least
// as privileged, which is how most of the admin surface is expressed.
type RouteRule struct {
	Prefix  string          `yaml:"prefix"`
	Roles   []identity.Role `yaml:"roles,omitempty"`
	MinRole identity.Role   `yaml:"min_role,omitempty"`
}

// Allows reports whether the rule admits the role.
func (r *RouteRule) Allows(role identity.Role) bool {
	if r.MinRole != "" {
		return role.AtLeast(r.MinRole)
	}
	for _, allowed := range r.Roles {
		if role == allowed {
			return true
		}
	}
	return false
}

// Decision is the outcome of a route guard evaluation.
type Decision int

const (
	// DecisionAllow lets the request through to the handler.
	DecisionAllow Decision = iota
	// DecisionRedirectSignIn sends an unauthenticated user to sign-in,
	// preserving the requested path as the callback.
	DecisionRedirectSignIn
	// DecisionRedirectHome sends an authenticated but under-privileged
	// user home, without revealing which roles would have sufficed.
	DecisionRedirectHome
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionRedirectSignIn:
		return "redirect-signin"
	case DecisionRedirectHome:
		return "redirect-home"
	}
	return "unknown"
}

// Guard applies the route rules to resolved principals.
type Guard struct {
	rules []RouteRule

	signInPath string
	homePath   string

	log     logger.Logger
	metrics *Metrics
}

type guardOptions struct {
	signInPath string
	homePath   string
	log        logger.Logger
	metrics    *Metrics
}

// GuardModifier changes how the Guard is configured.
type GuardModifier func(*guardOptions)

// WithSignInPath sets where unauthenticated users are redirected.
func WithSignInPath(path string) GuardModifier {
	return func(o *guardOptions) {
		o.signInPath = path
	}
}

// WithHomePath sets where under-privileged users are redirected.
func WithHomePath(path string) GuardModifier {
	return func(o *guardOptions) {
		o.homePath = path
	}
}

// WithGuardLogger sets the logger for decision logging.
func WithGuardLogger(log logger.Logger) GuardModifier {
	return func(o *guardOptions) {
		o.log = log
	}
}

// WithGuardMetrics attaches decision counters.
func WithGuardMetrics(metrics *Metrics) GuardModifier {
	return func(o *guardOptions) {
		o.metrics = metrics
	}
}

// NewGuard validates the rules and builds a Guard.
//
// Rules are kept in declaration order: evaluation is first match, not
// most specific match, so overlapping prefixes behave deterministically
// and exactly as written.
func NewGuard(rules []RouteRule, mods ...GuardModifier) (*Guard, error) {
	for ix, rule := range rules {
		if rule.Prefix == "" || !strings.HasPrefix(rule.Prefix, "/") {
			return nil, fmt.Errorf("rule#%d: prefix %q is invalid - must start with /", ix, rule.Prefix)
		}
		if len(rule.Roles) == 0 && rule.MinRole == "" {
			return nil, fmt.Errorf("rule#%d: %s - must list roles or a min_role", ix, rule.Prefix)
		}
		if rule.MinRole != "" {
			if _, err := identity.ParseRole(string(rule.MinRole)); err != nil {
				return nil, fmt.Errorf("rule#%d: %s - %w", ix, rule.Prefix, err)
			}
		}
		for _, role := range rule.Roles {
			if _, err := identity.ParseRole(string(role)); err != nil {
				return nil, fmt.Errorf("rule#%d: %s - %w", ix, rule.Prefix, err)
			}
		}
	}

	opts := &guardOptions{
		signInPath: "/auth/signin",
		homePath:   "/",
		log:        logger.Go,
	}
	for _, m := range mods {
		m(opts)
	}

	return &Guard{
		rules:      rules,
		signInPath: opts.signInPath,
		homePath:   opts.homePath,
		log:        opts.log,
		metrics:    opts.metrics,
	}, nil
}

// DefaultRules covers the protected surface of the application when no
// rule file is configured.
func DefaultRules() []RouteRule {
	return []RouteRule{
		{Prefix: "/admin/billing", Roles: []identity.Role{identity.RoleTeamAdmin, identity.RoleAdmin}},
		{Prefix: "/admin", MinRole: identity.RoleAdmin},
		{Prefix: "/api/admin", MinRole: identity.RoleAdmin},
		{Prefix: "/dashboard", MinRole: identity.RoleFree},
		{Prefix: "/forum/post", MinRole: identity.RoleFree},
	}
}

// LoadRules reads an ordered rule list from a YAML file.
func LoadRules(path string) ([]RouteRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []RouteRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("rule file %s is invalid - %w", path, err)
	}
	return rules, nil
}

// Decide evaluates the rules for a path and principal.
//
// It is a pure function of its inputs: no state is consulted or
// mutated, so identical inputs always produce identical outcomes. The
// returned target is the redirect destination, or the callback path for
// sign-in redirects; it is empty for DecisionAllow.
func (g *Guard) Decide(principal *identity.Principal, path string) (Decision, string) {
	var matched *RouteRule
	for ix := range g.rules {
		if strings.HasPrefix(path, g.rules[ix].Prefix) {
			matched = &g.rules[ix]
			break
		}
	}
	if matched == nil {
		// A path no rule claims is public.
		return DecisionAllow, ""
	}

	if principal == nil {
		return DecisionRedirectSignIn, path
	}
	if !matched.Allows(principal.Role) {
		return DecisionRedirectHome, g.homePath
	}
	return DecisionAllow, ""
}

// Protect wraps a handler with resolution and guarding.
//
// Allowed authenticated requests reach next carrying the forwarding
// headers; everything else is redirected per Decide.
func (g *Guard) Protect(resolver *Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Client supplied forwarding headers are always stripped:
		// the guard is their only legitimate writer.
		for _, header := range forwardingHeaders {
			r.Header.Del(header)
		}

		principal := resolver.Resolve(r.Context(), r)
		decision, target := g.Decide(principal, r.URL.Path)
		g.metrics.decision(decision.String())

		switch decision {
		case DecisionRedirectSignIn:
			g.log.Debugf("guard: unauthenticated request to %s, redirecting to sign-in", r.URL.Path)
			signin := g.signInPath + "?callback=" + url.QueryEscape(target)
			http.Redirect(w, r, signin, http.StatusTemporaryRedirect)
			return
		case DecisionRedirectHome:
			g.log.Infof("guard: subject %s role %s denied on %s", principal.Subject, principal.Role, r.URL.Path)
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}

		if principal != nil {
			r.Header.Set(HeaderUserID, principal.Subject)
			r.Header.Set(HeaderEmail, principal.Email)
			r.Header.Set(HeaderRole, string(principal.Role))
			r.Header.Set(HeaderTier, string(principal.Tier))
			r = r.WithContext(SetPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}
