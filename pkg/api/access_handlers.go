package api

import (
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/httputil"
	"github.com/botdeck/botdeck/pkg/identity"
)

// accessResponse is the payload for GET /api/v1/access/me
type accessResponse struct {
	Role         access.Role       `json:"role"`
	IsSuperadmin bool              `json:"is_superadmin"`
	BotIDs       []string          `json:"bot_ids"`
	Profile      *identity.Profile `json:"profile,omitempty"`
}

// resolveOwnAccess returns the caller's freshly computed role and accessible
// bot set. A principal with no assignments gets an explicit empty set, never
// an error, so the dashboard can render its empty state.
func (s *Server) resolveOwnAccess(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	var (
		resolved *access.ResolvedAccess
		profile  *identity.Profile
	)

	// Access resolution and the profile read are independent
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		resolved, err = s.access.ResolveAccess(ctx, principal.ID)
		return err
	})
	g.Go(func() error {
		p, err := s.profiles.GetByID(ctx, principal.ID)
		if errors.Is(err, identity.ErrProfileNotFound) {
			// Authenticated but not yet reconciled; access still resolves.
			return nil
		}
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err := g.Wait(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, accessResponse{
		Role:         resolved.Role,
		IsSuperadmin: resolved.IsSuperadmin,
		BotIDs:       resolved.BotIDs.IDs(),
		Profile:      profile,
	})
}
