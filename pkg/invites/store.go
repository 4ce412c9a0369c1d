package invites

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/identity"
)

const uniqueViolation = "23505"

// Store handles invitation persistence
type Store struct {
	db       *sql.DB
	profiles *identity.ProfileStore
}

// NewStore creates a new invitation store
func NewStore(db *sql.DB, profiles *identity.ProfileStore) *Store {
	return &Store{db: db, profiles: profiles}
}

// Create inserts a new invitation. Fails with *DuplicateInvitationError if
// a live invitation already exists for the email, and with ErrAccountExists
// if the email already belongs to an account.
func (s *Store) Create(ctx context.Context, inv *Invitation) error {
	_, err := s.profiles.GetByEmail(ctx, inv.Email)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrAccountExists, inv.Email)
	}
	if !errors.Is(err, identity.ErrProfileNotFound) {
		return fmt.Errorf("failed to check existing account: %w", err)
	}

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = time.Now().Add(DefaultExpiry)
	}

	insert := `
		INSERT INTO invitations (id, email, first_name, surname, role, bot_id, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, $8)
		RETURNING invited_at
	`
	err = s.db.QueryRowContext(ctx, insert,
		inv.ID, inv.Email, inv.FirstName, inv.Surname, string(inv.Role),
		inv.BotID, inv.InvitedBy, inv.ExpiresAt,
	).Scan(&inv.InvitedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return &DuplicateInvitationError{Email: inv.Email}
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// GetByID retrieves an invitation by id
func (s *Store) GetByID(ctx context.Context, id string) (*Invitation, error) {
	query := `
		SELECT id, email, first_name, surname, role, bot_id, COALESCE(invited_by::text, ''), invited_at, expires_at
		FROM invitations
		WHERE id = $1
	`
	return scanInvitation(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves the live invitation for an email
func (s *Store) GetByEmail(ctx context.Context, email string) (*Invitation, error) {
	query := `
		SELECT id, email, first_name, surname, role, bot_id, COALESCE(invited_by::text, ''), invited_at, expires_at
		FROM invitations
		WHERE email = $1
	`
	return scanInvitation(s.db.QueryRowContext(ctx, query, email))
}

// List lists all pending invitations
func (s *Store) List(ctx context.Context) ([]*Invitation, error) {
	query := `
		SELECT id, email, first_name, surname, role, bot_id, COALESCE(invited_by::text, ''), invited_at, expires_at
		FROM invitations
		ORDER BY invited_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		var role string
		var firstName, surname sql.NullString
		if err := rows.Scan(&inv.ID, &inv.Email, &firstName, &surname, &role,
			&inv.BotID, &inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		inv.Role = access.Role(role)
		if firstName.Valid {
			inv.FirstName = firstName.String
		}
		if surname.Valid {
			inv.Surname = surname.String
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invitations: %w", err)
	}
	return out, nil
}

// Delete removes an invitation
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvitationNotFound
	}

	return nil
}

// DeleteExpired removes invitations past their expiry, returning the count
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return result.RowsAffected()
}

func scanInvitation(row *sql.Row) (*Invitation, error) {
	inv := &Invitation{}
	var role string
	var firstName, surname sql.NullString
	err := row.Scan(&inv.ID, &inv.Email, &firstName, &surname, &role,
		&inv.BotID, &inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	inv.Role = access.Role(role)
	if firstName.Valid {
		inv.FirstName = firstName.String
	}
	if surname.Valid {
		inv.Surname = surname.String
	}
	return inv, nil
}
