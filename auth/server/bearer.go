package server

import (
	"context"
	"fmt"

	oidc "github.com/coreos/go-oidc"

	"github.com/flokana/authgate/lib/token"
)

// BearerClaims is what a verified identity-platform ID token asserts.
//
// Role and tier are deliberately absent: the identity platform knows who
// the user is, not what they may do. Authorization data always comes
// from the principal store.
type BearerClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// BearerVerifier validates bearer ID tokens issued by the third-party
// identity platform, using OIDC discovery and the platform JWKS.
type BearerVerifier struct {
	verifier *oidc.IDTokenVerifier
}

type bearerOptions struct {
	keySet oidc.KeySet
	algs   []string
}

// BearerModifier changes how the BearerVerifier is built.
type BearerModifier func(*bearerOptions)

// WithKeySet bypasses OIDC discovery and verifies signatures against the
// supplied key set. Tests use it to avoid network access.
func WithKeySet(keySet oidc.KeySet) BearerModifier {
	return func(o *bearerOptions) {
		o.keySet = keySet
	}
}

// WithSigningAlgorithms overrides the accepted token algorithms. The
// default is what the issuer advertises, or RS256.
func WithSigningAlgorithms(algs ...string) BearerModifier {
	return func(o *bearerOptions) {
		o.algs = algs
	}
}

// NewBearerVerifier builds a verifier for the configured issuer and
// audience. With no key set override this performs OIDC discovery
// against the issuer, so a missing or unreachable issuer fails here at
// startup.
func NewBearerVerifier(ctx context.Context, issuer, audience string, mods ...BearerModifier) (*BearerVerifier, error) {
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("identity platform issuer and audience must be configured")
	}

	opts := &bearerOptions{}
	for _, m := range mods {
		m(opts)
	}

	config := &oidc.Config{ClientID: audience, SupportedSigningAlgs: opts.algs}
	if opts.keySet != nil {
		return &BearerVerifier{verifier: oidc.NewVerifier(issuer, opts.keySet, config)}, nil
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("identity platform discovery failed for %s - %w", issuer, err)
	}
	return &BearerVerifier{verifier: provider.Verifier(config)}, nil
}

// Verify checks the raw ID token and extracts its identity claims.
// Any failure, including network errors fetching keys, yields an error
// wrapping token.ErrInvalidToken so the resolver can move on.
func (b *BearerVerifier) Verify(ctx context.Context, raw string) (*BearerClaims, error) {
	idToken, err := b.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w - %v", token.ErrInvalidToken, err)
	}

	var payload struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&payload); err != nil {
		return nil, fmt.Errorf("%w - claim decoding failed - %v", token.ErrInvalidToken, err)
	}

	return &BearerClaims{
		Subject:       idToken.Subject,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
	}, nil
}
