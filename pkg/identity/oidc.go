package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCResolver verifies ID tokens against the configured OIDC issuer and
// maps them to Principals.
type OIDCResolver struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCResolver discovers the OIDC provider and builds a token verifier
func NewOIDCResolver(ctx context.Context, issuerURL, clientID string) (*OIDCResolver, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

	return &OIDCResolver{verifier: verifier}, nil
}

// Resolve verifies the raw bearer token and extracts the principal. Any
// verification failure maps to ErrNotAuthenticated; the original cause is
// wrapped for logging but callers must not branch on it.
func (r *OIDCResolver) Resolve(ctx context.Context, rawToken string) (*Principal, error) {
	idToken, err := r.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrNotAuthenticated, err)
	}

	if idToken.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrNotAuthenticated)
	}

	return &Principal{
		ID:    idToken.Subject,
		Email: claims.Email,
	}, nil
}
