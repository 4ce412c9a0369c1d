package invites

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/assignments"
	"github.com/botdeck/botdeck/pkg/audit"
	"github.com/botdeck/botdeck/pkg/identity"
	"github.com/botdeck/botdeck/pkg/observability"
	"github.com/botdeck/botdeck/pkg/storage/postgres"
)

const (
	profileByIDQuery = `SELECT id, email, first_name, surname, created_at`
	profileInsert    = `INSERT INTO profiles`
	assignmentInsert = `INSERT INTO bot_users`
	assignmentSelect = `SELECT id, user_id, bot_id, role, is_active`
	primaryCheck     = `SELECT is_superadmin\(\$1\)`
)

// fakeDirectory records account lookups and deletions
type fakeDirectory struct {
	account *identity.Account
	deleted []string
}

func (d *fakeDirectory) LookupByEmail(ctx context.Context, email string) (*identity.Account, error) {
	if d.account == nil || d.account.Email != email {
		return nil, identity.ErrAccountNotFound
	}
	return d.account, nil
}

func (d *fakeDirectory) DeleteAccount(ctx context.Context, accountID string) error {
	d.deleted = append(d.deleted, accountID)
	return nil
}

func newTestReconciler(t *testing.T, directory identity.Directory) (*Reconciler, sqlmock.Sqlmock, func()) {
	db, mock := setupMockDB(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	profiles := identity.NewProfileStore(db)
	accessSvc := access.NewService(
		access.NewClassifier(db, logger, nil),
		access.NewResourceResolver(db, &postgres.Elevated{}, nil),
	)
	r := NewReconciler(db, NewStore(db, profiles), profiles, assignments.NewStore(db),
		directory, accessSvc, audit.NopLogger{}, logger, nil)
	return r, mock, func() { db.Close() }
}

func liveInvitation(email, botID string) *Invitation {
	return &Invitation{
		ID:        "inv-1",
		Email:     email,
		FirstName: "Ada",
		Surname:   "Lovelace",
		Role:      access.RoleMember,
		BotID:     botID,
		InvitedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func TestReconciler_Reconcile(t *testing.T) {
	ctx := context.Background()
	principal := &identity.Principal{ID: "6f1e9b1a-0000-4000-8000-0000000000aa", Email: "ada@example.com"}

	t.Run("first sign-in creates profile, assignment, and retires the invitation", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		mock.ExpectQuery(invitationSelect).WithArgs(principal.Email).
			WillReturnRows(invitationRow(liveInvitation(principal.Email, "bot-1")))
		mock.ExpectBegin()
		mock.ExpectQuery(profileByIDQuery).WithArgs(principal.ID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(profileInsert).
			WithArgs(principal.ID, principal.Email, "Ada", "Lovelace").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectQuery(assignmentInsert).
			WithArgs(principal.ID, "bot-1", "member", true).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(int64(11), time.Now(), time.Now()))
		mock.ExpectCommit()
		mock.ExpectExec(invitationDelete).WithArgs("inv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assignment, err := r.Reconcile(ctx, principal)
		require.NoError(t, err)
		assert.Equal(t, int64(11), assignment.ID)
		assert.Equal(t, access.RoleMember, assignment.Role)
		assert.True(t, assignment.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no live invitation rejects the principal", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		mock.ExpectQuery(invitationSelect).WithArgs(principal.Email).
			WillReturnError(sql.ErrNoRows)

		_, err := r.Reconcile(ctx, principal)
		assert.ErrorIs(t, err, ErrInvitationNotFound)
	})

	t.Run("expired invitation cannot be consumed", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		expired := liveInvitation(principal.Email, "bot-1")
		expired.ExpiresAt = time.Now().Add(-time.Minute)
		mock.ExpectQuery(invitationSelect).WithArgs(principal.Email).
			WillReturnRows(invitationRow(expired))

		_, err := r.Reconcile(ctx, principal)
		assert.ErrorIs(t, err, ErrInvitationExpired)
	})

	t.Run("failed invitation delete is a partial reconciliation", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		mock.ExpectQuery(invitationSelect).WithArgs(principal.Email).
			WillReturnRows(invitationRow(liveInvitation(principal.Email, "bot-1")))
		mock.ExpectBegin()
		mock.ExpectQuery(profileByIDQuery).WithArgs(principal.ID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(profileInsert).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectQuery(assignmentInsert).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(int64(11), time.Now(), time.Now()))
		mock.ExpectCommit()
		mock.ExpectExec(invitationDelete).WithArgs("inv-1").
			WillReturnError(errors.New("connection reset"))

		assignment, err := r.Reconcile(ctx, principal)

		var partial *PartialReconciliationError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, principal.Email, partial.Email)
		assert.Equal(t, principal.ID, partial.PrincipalID)
		assert.Equal(t, "invitation-delete", partial.Step)
		// the committed assignment is still reported for the caller
		require.NotNil(t, assignment)
		assert.Equal(t, int64(11), assignment.ID)
	})

	t.Run("retry after partial failure resumes with the outstanding delete", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		mock.ExpectQuery(invitationSelect).WithArgs(principal.Email).
			WillReturnRows(invitationRow(liveInvitation(principal.Email, "bot-1")))
		mock.ExpectBegin()
		// profile already committed by the previous attempt
		mock.ExpectQuery(profileByIDQuery).WithArgs(principal.ID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "surname", "created_at"}).
				AddRow(principal.ID, principal.Email, "Ada", "Lovelace", time.Now()))
		// assignment insert hits the uniqueness constraint
		mock.ExpectQuery(assignmentInsert).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bot_users_user_id_bot_id_key"})
		mock.ExpectQuery(assignmentSelect).WithArgs(principal.ID, "bot-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bot_id", "role", "is_active", "created_at", "updated_at"}).
				AddRow(int64(11), principal.ID, "bot-1", "member", true, time.Now(), time.Now()))
		mock.ExpectExec(invitationDelete).WithArgs("inv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		assignment, err := r.Reconcile(ctx, principal)
		require.NoError(t, err)
		assert.Equal(t, int64(11), assignment.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReconciler_Invite(t *testing.T) {
	ctx := context.Background()
	actorID := "6f1e9b1a-0000-4000-8000-0000000000ab"

	t.Run("superadmin invites", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		mock.ExpectQuery(primaryCheck).WithArgs(actorID).
			WillReturnRows(sqlmock.NewRows([]string{"is_superadmin"}).AddRow(true))
		mock.ExpectQuery(profileByEmailQuery).WithArgs("new@example.com").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`INSERT INTO invitations`).
			WillReturnRows(sqlmock.NewRows([]string{"invited_at"}).AddRow(time.Now()))

		inv := &Invitation{Email: "new@example.com", Role: access.RoleMember, BotID: "bot-1"}
		require.NoError(t, r.Invite(ctx, actorID, inv))
		assert.Equal(t, actorID, inv.InvitedBy)
	})

	t.Run("non-superadmin denied", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		mock.ExpectQuery(primaryCheck).WithArgs(actorID).
			WillReturnRows(sqlmock.NewRows([]string{"is_superadmin"}).AddRow(false))
		mock.ExpectQuery(`SELECT role FROM bot_users`).WithArgs(actorID).
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))

		inv := &Invitation{Email: "new@example.com", Role: access.RoleMember, BotID: "bot-1"}
		err := r.Invite(ctx, actorID, inv)
		assert.ErrorIs(t, err, access.ErrSuperadminRequired)
	})

	t.Run("superadmin is not an invitable role", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		mock.ExpectQuery(primaryCheck).WithArgs(actorID).
			WillReturnRows(sqlmock.NewRows([]string{"is_superadmin"}).AddRow(true))

		inv := &Invitation{Email: "new@example.com", Role: access.RoleSuperadmin, BotID: "bot-1"}
		err := r.Invite(ctx, actorID, inv)
		assert.ErrorIs(t, err, assignments.ErrInvalidRole)
	})
}

func TestReconciler_Cancel(t *testing.T) {
	ctx := context.Background()
	actorID := "6f1e9b1a-0000-4000-8000-0000000000ac"

	t.Run("cancellation removes the unconfirmed account shell", func(t *testing.T) {
		directory := &fakeDirectory{
			account: &identity.Account{ID: "shell-1", Email: "new@example.com", EmailConfirmed: false},
		}
		r, mock, cleanup := newTestReconciler(t, directory)
		defer cleanup()

		mock.ExpectQuery(primaryCheck).WithArgs(actorID).
			WillReturnRows(sqlmock.NewRows([]string{"is_superadmin"}).AddRow(true))
		mock.ExpectQuery(invitationSelect).WithArgs("inv-1").
			WillReturnRows(invitationRow(liveInvitation("new@example.com", "bot-1")))
		mock.ExpectExec(invitationDelete).WithArgs("inv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, r.Cancel(ctx, actorID, "inv-1"))
		assert.Equal(t, []string{"shell-1"}, directory.deleted)
	})

	t.Run("confirmed accounts are left alone", func(t *testing.T) {
		directory := &fakeDirectory{
			account: &identity.Account{ID: "real-1", Email: "new@example.com", EmailConfirmed: true},
		}
		r, mock, cleanup := newTestReconciler(t, directory)
		defer cleanup()

		mock.ExpectQuery(primaryCheck).WithArgs(actorID).
			WillReturnRows(sqlmock.NewRows([]string{"is_superadmin"}).AddRow(true))
		mock.ExpectQuery(invitationSelect).WithArgs("inv-1").
			WillReturnRows(invitationRow(liveInvitation("new@example.com", "bot-1")))
		mock.ExpectExec(invitationDelete).WithArgs("inv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, r.Cancel(ctx, actorID, "inv-1"))
		assert.Empty(t, directory.deleted)
	})

	t.Run("no account shell is fine", func(t *testing.T) {
		r, mock, cleanup := newTestReconciler(t, &fakeDirectory{})
		defer cleanup()

		mock.ExpectQuery(primaryCheck).WithArgs(actorID).
			WillReturnRows(sqlmock.NewRows([]string{"is_superadmin"}).AddRow(true))
		mock.ExpectQuery(invitationSelect).WithArgs("inv-1").
			WillReturnRows(invitationRow(liveInvitation("new@example.com", "bot-1")))
		mock.ExpectExec(invitationDelete).WithArgs("inv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, r.Cancel(ctx, actorID, "inv-1"))
	})
}
