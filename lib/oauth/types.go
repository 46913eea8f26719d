package oauth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flokana/authgate/lib/khttp/kcookie"
)

var (
	// ErrNotAuthenticated indicates no handshake state was found at all,
	// meaning a login process probably needs to be started.
	ErrNotAuthenticated = errors.New("no authentication data found")

	// ErrStateMismatch indicates the callback state does not match the
	// nonce issued at login. Treated as a potential forgery: the
	// authorization code is never exchanged, and the flow is never
	// retried automatically.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrProvider wraps any error received from the remote provider.
	// Callers log the full detail and show the user a generic failure.
	ErrProvider = errors.New("oauth provider error")
)

// Profile is what the provider asserts about the user at the end of the
// handshake. It carries identity only: role and tier are this
// application's business and are resolved from the principal store.
type Profile struct {
	// Subject is the provider-scoped stable identifier of the user.
	Subject string

	Email       string
	DisplayName string

	// EmailVerified reports whether the provider vouches for the email.
	// Flows that create a new principal record must require it.
	EmailVerified bool
}

// Valid returns true if the profile carries enough to identify the user.
func (p *Profile) Valid() bool {
	return p.Subject != "" && p.Email != ""
}

// AuthData is the result of a completed handshake.
type AuthData struct {
	Profile *Profile

	// Target is the application path the user should land on after
	// sign-in, carried through the handshake inside the signed state.
	Target string
}

// Complete returns true if the handshake produced a usable profile.
func (ad *AuthData) Complete() bool {
	return ad.Profile != nil && ad.Profile.Valid()
}

// loginState is the claim set signed into the `state` parameter.
// The Nonce must match the one stored in the state cookie.
type loginState struct {
	jwt.RegisteredClaims

	Nonce  string `json:"nonce"`
	Target string `json:"target,omitempty"`
}

// stateCookie is the claim set signed into the short lived state cookie.
type stateCookie struct {
	jwt.RegisteredClaims

	Nonce string `json:"nonce"`
}

// LoginOptions carries per-login parameters.
type LoginOptions struct {
	// Target is where to send the user after a successful sign-in.
	Target string

	// CookieOptions tweak the attributes of the state cookie.
	CookieOptions kcookie.Modifiers
}

// LoginModifier applies a change to the LoginOptions.
type LoginModifier func(*LoginOptions)

// LoginModifiers is a list of LoginModifier applied in order.
type LoginModifiers []LoginModifier

// Apply runs all modifiers against the options.
func (mods LoginModifiers) Apply(o *LoginOptions) *LoginOptions {
	for _, m := range mods {
		m(o)
	}
	return o
}

// WithTarget sets the path the user is redirected to after sign-in.
func WithTarget(target string) LoginModifier {
	return func(o *LoginOptions) {
		o.Target = target
	}
}

// WithCookieOptions sets extra attributes on the state cookie.
func WithCookieOptions(mods ...kcookie.Modifier) LoginModifier {
	return func(o *LoginOptions) {
		o.CookieOptions = append(o.CookieOptions, mods...)
	}
}
