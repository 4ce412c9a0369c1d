package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrProfileNotFound is returned when no profile row exists.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the dashboard-side user record, keyed by the identity
// provider's stable user id.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	Surname   string    `json:"surname"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileStore handles profile persistence
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore creates a new profile store
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// GetByID retrieves a profile by principal id
func (s *ProfileStore) GetByID(ctx context.Context, id string) (*Profile, error) {
	query := `
		SELECT id, email, first_name, surname, created_at
		FROM profiles
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a profile by email
func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	query := `
		SELECT id, email, first_name, surname, created_at
		FROM profiles
		WHERE email = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, email))
}

// CreateTx inserts a profile inside an existing transaction. Used by
// invitation reconciliation so the profile and assignment commit together.
func (s *ProfileStore) CreateTx(ctx context.Context, tx *sql.Tx, p *Profile) error {
	query := `
		INSERT INTO profiles (id, email, first_name, surname)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if err := tx.QueryRowContext(ctx, query, p.ID, p.Email, p.FirstName, p.Surname).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *ProfileStore) scanOne(row *sql.Row) (*Profile, error) {
	p := &Profile{}
	var firstName, surname sql.NullString
	err := row.Scan(&p.ID, &p.Email, &firstName, &surname, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if firstName.Valid {
		p.FirstName = firstName.String
	}
	if surname.Valid {
		p.Surname = surname.String
	}
	return p, nil
}
