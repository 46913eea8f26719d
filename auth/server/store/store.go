// Package store defines the principal store consumed by the auth layer.
//
// The store is an external collaborator from the resolver's point of
// view: the auth layer only performs point lookups by subject or email,
// and a single upsert when an OAuth sign-in sees a subject for the first
// time. Backends live in the sqlite and bbolt subpackages.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/flokana/authgate/lib/identity"
)

// ErrNotFound is returned by lookups that match no stored principal.
//
// A bearer credential whose subject misses the store resolves to
// unauthenticated, not to a default role, so callers must distinguish
// this error from genuine store failures.
var ErrNotFound = errors.New("principal not found")

// Principal is the stored record backing an authenticated identity.
type Principal struct {
	// Subject is the stable unique identifier. Provider-minted subjects
	// are namespaced, for example "linkedin:abc123".
	Subject string `json:"subject"`

	// Email is stored lower-cased; see NormalizeEmail.
	Email string `json:"email"`

	DisplayName string        `json:"display_name,omitempty"`
	Role        identity.Role `json:"role"`
	Tier        identity.Tier `json:"tier"`

	// PasswordHash is the bcrypt hash for local-credential accounts.
	// Empty for provider-only accounts: those can never sign in with a
	// password.
	PasswordHash string `json:"password_hash,omitempty"`

	// Provider records which mechanism created the account.
	Provider string `json:"provider,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Identity converts the stored record into a request principal.
func (p *Principal) Identity(provider string) *identity.Principal {
	return &identity.Principal{
		Subject:     p.Subject,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		Tier:        p.Tier,
		Provider:    provider,
	}
}

// NormalizeEmail lower-cases and trims an email address.
//
// Both storage and lookup normalize through this function, so email
// matching is case-insensitive everywhere by construction.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store supports the point lookups and the single write the auth layer
// performs. Implementations must be safe for concurrent use.
type Store interface {
	// FindBySubject returns the principal stored under subject, or
	// ErrNotFound.
	FindBySubject(ctx context.Context, subject string) (*Principal, error)

	// FindByEmail returns the principal stored under the normalized
	// email, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*Principal, error)

	// Upsert stores the record, replacing any record with the same
	// subject. The email index follows the record.
	Upsert(ctx context.Context, record *Principal) error

	Close() error
}
