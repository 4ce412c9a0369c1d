package invites

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/assignments"
	"github.com/botdeck/botdeck/pkg/audit"
	"github.com/botdeck/botdeck/pkg/identity"
	"github.com/botdeck/botdeck/pkg/observability"
)

// Reconciler promotes a pending invitation into a profile plus an
// assignment exactly once, then retires the invitation. It also owns
// invitation creation and cancellation so the uniqueness and cleanup rules
// live in one place.
//
// The profile and assignment writes share one transaction; the invitation
// delete is a third step. A failed delete surfaces as
// *PartialReconciliationError, and a retry resumes by completing only the
// outstanding delete; the assignment uniqueness constraint makes the
// transactional half conflict on replay instead of duplicating rows.
type Reconciler struct {
	db          *sql.DB
	store       *Store
	profiles    *identity.ProfileStore
	assignments *assignments.Store
	directory   identity.Directory
	access      *access.Service
	audit       audit.Logger
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewReconciler creates a new invitation reconciler. metrics may be nil.
func NewReconciler(
	db *sql.DB,
	store *Store,
	profiles *identity.ProfileStore,
	assignmentStore *assignments.Store,
	directory identity.Directory,
	accessSvc *access.Service,
	auditLogger audit.Logger,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Reconciler {
	return &Reconciler{
		db:          db,
		store:       store,
		profiles:    profiles,
		assignments: assignmentStore,
		directory:   directory,
		access:      accessSvc,
		audit:       auditLogger,
		logger:      logger,
		metrics:     metrics,
	}
}

// Invite creates a pending invitation on behalf of actorID (superadmin only)
func (r *Reconciler) Invite(ctx context.Context, actorID string, inv *Invitation) error {
	if err := r.access.RequireSuperadmin(ctx, actorID); err != nil {
		return err
	}
	if !access.ValidAssignmentRole(inv.Role) {
		return fmt.Errorf("%w: %q", assignments.ErrInvalidRole, inv.Role)
	}
	inv.InvitedBy = actorID

	err := r.store.Create(ctx, inv)
	r.audit.Log(ctx, audit.Event{
		Type:        audit.EventInvitationCreate,
		ActorID:     actorID,
		SubjectType: "invitation",
		SubjectID:   inv.Email,
		Success:     err == nil,
		Detail:      detailOf(err),
	})
	return err
}

// List returns all pending invitations (superadmin only)
func (r *Reconciler) List(ctx context.Context, actorID string) ([]*Invitation, error) {
	if err := r.access.RequireSuperadmin(ctx, actorID); err != nil {
		return nil, err
	}
	return r.store.List(ctx)
}

// Reconcile consumes the invitation matching the principal's email: it
// creates the profile, creates the assignment, and deletes the invitation.
// Replaying after a complete run is rejected with ErrInvitationNotFound
// because the invitation no longer exists.
func (r *Reconciler) Reconcile(ctx context.Context, principal *identity.Principal) (*assignments.Assignment, error) {
	inv, err := r.store.GetByEmail(ctx, principal.Email)
	if err != nil {
		r.countResult("rejected")
		return nil, err
	}
	if inv.Expired(time.Now()) {
		r.countResult("expired")
		return nil, fmt.Errorf("%w: %s", ErrInvitationExpired, inv.Email)
	}

	assignment, err := r.reconcile(ctx, inv, principal)

	r.audit.Log(ctx, audit.Event{
		Type:        audit.EventInvitationReconcile,
		ActorID:     principal.ID,
		SubjectType: "invitation",
		SubjectID:   inv.ID,
		Success:     err == nil,
		Detail:      detailOf(err),
	})
	return assignment, err
}

func (r *Reconciler) reconcile(ctx context.Context, inv *Invitation, principal *identity.Principal) (*assignments.Assignment, error) {
	assignment := &assignments.Assignment{
		UserID:   principal.ID,
		BotID:    inv.BotID,
		Role:     inv.Role,
		IsActive: true,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.countResult("error")
		return nil, fmt.Errorf("failed to begin reconciliation: %w", err)
	}
	defer tx.Rollback()

	_, err = r.profiles.GetByID(ctx, principal.ID)
	switch {
	case errors.Is(err, identity.ErrProfileNotFound):
		profile := &identity.Profile{
			ID:        principal.ID,
			Email:     principal.Email,
			FirstName: inv.FirstName,
			Surname:   inv.Surname,
		}
		if err := r.profiles.CreateTx(ctx, tx, profile); err != nil {
			r.countResult("error")
			return nil, err
		}
	case err != nil:
		r.countResult("error")
		return nil, fmt.Errorf("failed to check profile: %w", err)
	}

	err = r.assignments.CreateTx(ctx, tx, assignment)
	var dup *assignments.DuplicateAssignmentError
	switch {
	case errors.As(err, &dup):
		// A previous run committed the profile and assignment but failed
		// to retire the invitation. Resume by completing the delete.
		r.logger.WithFields(map[string]interface{}{
			"email":        inv.Email,
			"principal_id": principal.ID,
		}).Warn("Resuming partially completed reconciliation")
		existing, getErr := r.assignments.GetByPair(ctx, principal.ID, inv.BotID)
		if getErr != nil {
			r.countResult("error")
			return nil, getErr
		}
		assignment = existing
	case err != nil:
		r.countResult("error")
		return nil, err
	default:
		if err := tx.Commit(); err != nil {
			r.countResult("error")
			return nil, fmt.Errorf("failed to commit reconciliation: %w", err)
		}
	}

	if err := r.store.Delete(ctx, inv.ID); err != nil && !errors.Is(err, ErrInvitationNotFound) {
		r.countResult("partial")
		return assignment, &PartialReconciliationError{
			Email:       inv.Email,
			PrincipalID: principal.ID,
			Step:        "invitation-delete",
			Err:         err,
		}
	}

	r.countResult("ok")
	return assignment, nil
}

// Cancel deletes a pending invitation (superadmin only) and removes any
// auth-provider account shell created solely to receive the invitation
// email, so no dangling permission-less account survives.
func (r *Reconciler) Cancel(ctx context.Context, actorID, invitationID string) error {
	if err := r.access.RequireSuperadmin(ctx, actorID); err != nil {
		return err
	}

	inv, err := r.store.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, invitationID); err != nil {
		return err
	}

	err = r.deleteAccountShell(ctx, inv.Email)
	r.audit.Log(ctx, audit.Event{
		Type:        audit.EventInvitationCancel,
		ActorID:     actorID,
		SubjectType: "invitation",
		SubjectID:   invitationID,
		Success:     err == nil,
		Detail:      detailOf(err),
	})
	return err
}

func (r *Reconciler) deleteAccountShell(ctx context.Context, email string) error {
	account, err := r.directory.LookupByEmail(ctx, email)
	if errors.Is(err, identity.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up account shell: %w", err)
	}
	if account.EmailConfirmed {
		// The account completed setup independently; not a shell, leave it.
		return nil
	}
	if err := r.directory.DeleteAccount(ctx, account.ID); err != nil {
		return fmt.Errorf("failed to delete account shell: %w", err)
	}
	return nil
}

// CleanupExpired removes expired invitations, returning how many were purged
func (r *Reconciler) CleanupExpired(ctx context.Context) (int64, error) {
	return r.store.DeleteExpired(ctx)
}

func (r *Reconciler) countResult(result string) {
	if r.metrics != nil {
		r.metrics.ReconciliationsTotal.WithLabelValues(result).Inc()
	}
}

func detailOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
