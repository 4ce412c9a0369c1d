// Package identity integrates with the external identity provider: it
// resolves authenticated principals from bearer ID tokens and manages
// auth-provider account shells through the provider's admin API.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/botdeck/botdeck/pkg/contextkeys"
)

// Principal is an authenticated identity. It is created by the external
// identity provider at sign-in and read-only to this service.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ErrNotAuthenticated is returned when no valid principal can be resolved.
// It is always surfaced as a hard failure and never defaults to a role.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrAccountNotFound is returned by Directory lookups for unknown accounts.
var ErrAccountNotFound = errors.New("account not found")

// Resolver resolves the authenticated principal from a raw bearer token.
type Resolver interface {
	Resolve(ctx context.Context, rawToken string) (*Principal, error)
}

// Account is an auth-provider account record as seen through the admin API.
// An account that has never completed setup (EmailConfirmed false) is a
// shell created solely to receive an invitation email.
type Account struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

// Directory is the identity provider's admin surface. It is used only by
// invitation cancellation to remove dangling account shells.
type Directory interface {
	LookupByEmail(ctx context.Context, email string) (*Account, error)
	DeleteAccount(ctx context.Context, accountID string) error
}

// WithPrincipal stores the authenticated principal in the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext extracts the authenticated principal, if any
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p, ok && p != nil
}
