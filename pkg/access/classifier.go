package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/botdeck/botdeck/pkg/observability"
)

// Classifier determines a principal's effective role.
//
// Superadmin status is evaluated primarily through the is_superadmin SQL
// function (SECURITY DEFINER, so client-supplied filters cannot narrow it)
// with a direct superusers lookup as fallback when the function call fails.
// For everyone else the role is the maximum across active assignments:
// superadmin > admin > member > none.
type Classifier struct {
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewClassifier creates a new role classifier. metrics may be nil.
func NewClassifier(db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) *Classifier {
	return &Classifier{db: db, logger: logger, metrics: metrics}
}

// Classify returns the principal's effective role. On any unrecoverable
// data-access error the returned role is RoleNone alongside the error, so a
// caller that ignores the error still fails closed.
func (c *Classifier) Classify(ctx context.Context, principalID string) (Role, error) {
	super, err := c.isSuperadmin(ctx, principalID)
	if err != nil {
		c.countOutcome("unavailable")
		return RoleNone, err
	}
	if super {
		c.countOutcome("superadmin")
		return RoleSuperadmin, nil
	}

	query := `SELECT role FROM bot_users WHERE user_id = $1 AND is_active = TRUE`
	rows, err := c.db.QueryContext(ctx, query, principalID)
	if err != nil {
		c.countOutcome("unavailable")
		return RoleNone, fmt.Errorf("failed to read assignments: %w", err)
	}
	defer rows.Close()

	hasAny := false
	hasAdmin := false
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			c.countOutcome("unavailable")
			return RoleNone, fmt.Errorf("failed to scan assignment role: %w", err)
		}
		hasAny = true
		if Role(role) == RoleAdmin {
			hasAdmin = true
		}
	}
	if err := rows.Err(); err != nil {
		c.countOutcome("unavailable")
		return RoleNone, fmt.Errorf("failed to read assignments: %w", err)
	}

	switch {
	case !hasAny:
		c.countOutcome("none")
		return RoleNone, nil
	case hasAdmin:
		c.countOutcome("admin")
		return RoleAdmin, nil
	default:
		c.countOutcome("member")
		return RoleMember, nil
	}
}

// isSuperadmin runs the primary trusted check and falls back to the direct
// table lookup only when the primary call itself fails. "No rows" from the
// fallback is a normal outcome, not an error; only a failure of both paths
// yields ErrClassificationUnavailable.
func (c *Classifier) isSuperadmin(ctx context.Context, principalID string) (bool, error) {
	var result bool
	primaryErr := c.db.QueryRowContext(ctx, "SELECT is_superadmin($1)", principalID).Scan(&result)
	if primaryErr == nil {
		return result, nil
	}

	if c.metrics != nil {
		c.metrics.ClassificationFallbacks.Inc()
	}
	c.logger.WithError(primaryErr).WithField("principal_id", principalID).
		Warn("Primary superadmin check failed, using fallback lookup")

	var active bool
	fallbackErr := c.db.QueryRowContext(ctx,
		"SELECT is_active FROM superusers WHERE user_id = $1 AND is_active = TRUE",
		principalID,
	).Scan(&active)

	if fallbackErr == sql.ErrNoRows {
		return false, nil
	}
	if fallbackErr != nil {
		return false, fmt.Errorf("%w: primary: %v; fallback: %v",
			ErrClassificationUnavailable, primaryErr, fallbackErr)
	}

	return active, nil
}

func (c *Classifier) countOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.ClassificationsTotal.WithLabelValues(outcome).Inc()
	}
}
