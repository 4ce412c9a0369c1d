package middleware

import (
	"net/http"
	"strings"

	"github.com/botdeck/botdeck/pkg/contextkeys"
	"github.com/botdeck/botdeck/pkg/httputil"
	"github.com/botdeck/botdeck/pkg/identity"
	"github.com/botdeck/botdeck/pkg/observability"
)

// AuthMiddleware resolves the caller's identity from the Authorization
// header and stores the principal in the request context. Requests without
// a verifiable identity never reach protected handlers.
type AuthMiddleware struct {
	resolver identity.Resolver
	logger   *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(resolver identity.Resolver, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver, logger: logger}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := m.resolver.Resolve(r.Context(), parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("Token verification failed")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := identity.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal extracts the authenticated principal from a request. Returns
// nil when the request did not pass through AuthMiddleware.
func GetPrincipal(r *http.Request) *identity.Principal {
	v := r.Context().Value(contextkeys.PrincipalKey)
	if v == nil {
		return nil
	}
	principal, ok := v.(*identity.Principal)
	if !ok {
		return nil
	}
	return principal
}
