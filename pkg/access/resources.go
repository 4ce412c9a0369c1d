package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/botdeck/botdeck/pkg/observability"
	"github.com/botdeck/botdeck/pkg/storage/postgres"
)

// ResourceResolver computes the set of bot identifiers a principal may act
// on. For non-superadmins the set contains exactly the bots with an active
// assignment owned by the principal; a superadmin gets every provisioned
// bot, enumerated through the elevated gateway because listing across
// tenants requires bypassing row-level policy.
type ResourceResolver struct {
	db       *sql.DB
	elevated *postgres.Elevated
	metrics  *observability.Metrics
}

// NewResourceResolver creates a new resource resolver. metrics may be nil.
func NewResourceResolver(db *sql.DB, elevated *postgres.Elevated, metrics *observability.Metrics) *ResourceResolver {
	return &ResourceResolver{db: db, elevated: elevated, metrics: metrics}
}

// Resolve returns the accessible bot set for the given role and principal.
// Every downstream listing must intersect its query against this set; a
// query trusting a client-supplied bot id as its sole filter is invalid.
func (r *ResourceResolver) Resolve(ctx context.Context, role Role, principalID string) (ResourceSet, error) {
	set := make(ResourceSet)

	switch role {
	case RoleNone:
		return set, nil

	case RoleSuperadmin:
		if r.metrics != nil {
			r.metrics.ElevatedQueriesTotal.WithLabelValues("query").Inc()
		}
		rows, err := r.elevated.QueryContext(ctx, `SELECT id FROM bots WHERE id IS NOT NULL`)
		if err != nil {
			if r.metrics != nil {
				r.metrics.ElevatedQueryErrors.Inc()
			}
			return nil, fmt.Errorf("failed to enumerate bots: %w", err)
		}
		defer rows.Close()
		return collectIDs(rows, set)

	default:
		rows, err := r.db.QueryContext(ctx,
			`SELECT DISTINCT bot_id FROM bot_users WHERE user_id = $1 AND is_active = TRUE`,
			principalID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to read accessible bots: %w", err)
		}
		defer rows.Close()
		return collectIDs(rows, set)
	}
}

func collectIDs(rows *sql.Rows, set ResourceSet) (ResourceSet, error) {
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan bot id: %w", err)
		}
		set.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bot ids: %w", err)
	}
	return set, nil
}

// Service combines classification and resource resolution into the single
// per-request access picture.
type Service struct {
	classifier *Classifier
	resources  *ResourceResolver
}

// NewService creates a new access service
func NewService(classifier *Classifier, resources *ResourceResolver) *Service {
	return &Service{classifier: classifier, resources: resources}
}

// Classifier exposes the underlying classifier for precondition gates
func (s *Service) Classifier() *Classifier {
	return s.classifier
}

// ResolveAccess computes the full ResolvedAccess for a principal. Computed
// fresh on every call; callers must not retain the result across requests.
func (s *Service) ResolveAccess(ctx context.Context, principalID string) (*ResolvedAccess, error) {
	role, err := s.classifier.Classify(ctx, principalID)
	if err != nil {
		return nil, err
	}

	botIDs, err := s.resources.Resolve(ctx, role, principalID)
	if err != nil {
		return nil, err
	}

	return &ResolvedAccess{
		Role:         role,
		IsSuperadmin: role == RoleSuperadmin,
		BotIDs:       botIDs,
	}, nil
}

// RequireSuperadmin re-runs classification and returns
// ErrSuperadminRequired unless the principal is currently a superadmin.
// Gates call this immediately before every mutation rather than once per
// session, so a downgrade revokes elevated trust on the next request.
func (s *Service) RequireSuperadmin(ctx context.Context, principalID string) error {
	role, err := s.classifier.Classify(ctx, principalID)
	if err != nil {
		return err
	}
	if role != RoleSuperadmin {
		return ErrSuperadminRequired
	}
	return nil
}
