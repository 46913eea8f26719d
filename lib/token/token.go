// Package token signs and verifies the symmetric HMAC tokens used by the
// session cookies and the OAuth handshake.
//
// Both session cookie formats (current and legacy) carry the same claim
// shape and are signed with the same process-wide secret; only the cookie
// name differs. The secret is loaded once at startup and never rotated at
// runtime.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flokana/authgate/lib/identity"
)

// ErrInvalidToken is returned for any token that cannot be trusted:
// bad signature, expired, malformed, or carrying unknown claim values.
// Verification never distinguishes these cases to the caller beyond the
// wrapped detail, and never panics on malformed input.
var ErrInvalidToken = errors.New("invalid token")

// MinSecretLength is the shortest signing secret accepted at startup.
const MinSecretLength = 32

// DefaultValidity is the expiry window of a session token when the
// caller does not override it.
const DefaultValidity = 24 * time.Hour

// SessionClaims is the claim set carried by both session cookie formats.
type SessionClaims struct {
	jwt.RegisteredClaims

	Email       string `json:"email"`
	DisplayName string `json:"name,omitempty"`
	Role        string `json:"role"`
	Tier        string `json:"tier"`
}

// Encoder signs and verifies HMAC (HS256) tokens with a shared secret.
type Encoder struct {
	secret   []byte
	issuer   string
	validity time.Duration
	now      func() time.Time
}

type options struct {
	issuer   string
	validity time.Duration
	now      func() time.Time
}

// Modifier changes how the Encoder is configured.
type Modifier func(*options)

// WithIssuer sets the iss claim stamped on minted tokens.
func WithIssuer(issuer string) Modifier {
	return func(o *options) {
		o.issuer = issuer
	}
}

// WithValidity sets the default expiry window of minted tokens.
func WithValidity(validity time.Duration) Modifier {
	return func(o *options) {
		o.validity = validity
	}
}

// WithTimeSource overrides the clock. Tests use it to mint tokens in
// the past without sleeping.
func WithTimeSource(now func() time.Time) Modifier {
	return func(o *options) {
		o.now = now
	}
}

// NewEncoder returns an Encoder using the supplied signing secret.
//
// A missing or short secret is a configuration error and fails here,
// at startup, rather than at first request.
func NewEncoder(secret []byte, mods ...Modifier) (*Encoder, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}

	opts := &options{
		issuer:   "authgate",
		validity: DefaultValidity,
		now:      time.Now,
	}
	for _, m := range mods {
		m(opts)
	}

	return &Encoder{
		secret:   secret,
		issuer:   opts.issuer,
		validity: opts.validity,
		now:      opts.now,
	}, nil
}

// Validity returns the default expiry window of minted tokens.
func (e *Encoder) Validity() time.Duration {
	return e.validity
}

// Mint creates a signed session token for the principal.
//
// A zero validity uses the encoder default.
func (e *Encoder) Mint(principal identity.Principal, validity time.Duration) (string, error) {
	if validity == 0 {
		validity = e.validity
	}
	now := e.now()

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   principal.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Email:       principal.Email,
		DisplayName: principal.DisplayName,
		Role:        string(principal.Role),
		Tier:        string(principal.Tier),
	}
	return e.Sign(claims)
}

// Sign serializes and signs an arbitrary claim set with the shared secret.
func (e *Encoder) Sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("could not sign token - %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry of a session token and returns its
// claims. Any failure yields ErrInvalidToken: the token is never
// partially trusted.
func (e *Encoder) Verify(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := e.Decode(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Decode verifies signature and expiry of a token into the supplied
// claim struct. Used directly by transient tokens like the OAuth login
// state.
func (e *Encoder) Decode(raw string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// Only the symmetric method this encoder mints. An attacker
		// supplied "none" or asymmetric token must not get through.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return e.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(e.now))
	if err != nil {
		return fmt.Errorf("%w - %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// Principal converts verified session claims into a Principal,
// rejecting unknown role or tier values.
func (c *SessionClaims) Principal(provider string) (*identity.Principal, error) {
	role, err := identity.ParseRole(c.Role)
	if err != nil {
		return nil, fmt.Errorf("%w - %v", ErrInvalidToken, err)
	}
	tier, err := identity.ParseTier(c.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w - %v", ErrInvalidToken, err)
	}

	return &identity.Principal{
		Subject:     c.Subject,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Role:        role,
		Tier:        tier,
		Provider:    provider,
	}, nil
}
