package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flokana/authgate/lib/identity"
	"github.com/flokana/authgate/lib/token"
)

// DefaultCustomTokenValidity matches what the identity platform accepts
// for custom sign-in tokens.
const DefaultCustomTokenValidity = time.Hour

// CustomClaims is the claim set of a custom token handed back to the
// browser after an OAuth handshake. The client exchanges it with the
// identity platform for its own session.
type CustomClaims struct {
	jwt.RegisteredClaims

	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// Minter mints short-lived custom tokens binding an OAuth identity to
// the identity platform audience.
type Minter struct {
	encoder  *token.Encoder
	audience string
	validity time.Duration
	now      func() time.Time
}

// NewMinter builds a Minter targeting the identity platform audience.
func NewMinter(encoder *token.Encoder, audience string) (*Minter, error) {
	if encoder == nil {
		return nil, fmt.Errorf("minter needs a token encoder")
	}
	if audience == "" {
		return nil, fmt.Errorf("minter needs the identity platform audience")
	}
	return &Minter{
		encoder:  encoder,
		audience: audience,
		validity: DefaultCustomTokenValidity,
		now:      time.Now,
	}, nil
}

// Mint signs a custom token for the principal.
func (m *Minter) Mint(principal *identity.Principal) (string, error) {
	now := m.now()
	return m.encoder.Sign(&CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.Subject,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
		},
		UID:   principal.Subject,
		Email: principal.Email,
	})
}
