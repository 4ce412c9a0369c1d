package assignments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/botdeck/botdeck/pkg/access"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations. The (user_id, bot_id) constraint is the authoritative guard
// against concurrent duplicate creates; the application pre-check only
// produces the friendlier error in the common, non-racing case.
const uniqueViolation = "23505"

// Store handles assignment persistence over the bot_users table
type Store struct {
	db *sql.DB
}

// NewStore creates a new assignment store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new assignment. Returns *DuplicateAssignmentError if an
// assignment for the (user, bot) pair already exists, active or not.
func (s *Store) Create(ctx context.Context, a *Assignment) error {
	if !access.ValidAssignmentRole(a.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, a.Role)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bot_users WHERE user_id = $1 AND bot_id = $2)`,
		a.UserID, a.BotID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing assignment: %w", err)
	}
	if exists {
		return &DuplicateAssignmentError{UserID: a.UserID, BotID: a.BotID}
	}

	query := `
		INSERT INTO bot_users (user_id, bot_id, role, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, a.UserID, a.BotID, string(a.Role), a.IsActive).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return &DuplicateAssignmentError{UserID: a.UserID, BotID: a.BotID}
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	return nil
}

// CreateTx inserts an assignment inside an existing transaction. Used by
// invitation reconciliation.
func (s *Store) CreateTx(ctx context.Context, tx *sql.Tx, a *Assignment) error {
	if !access.ValidAssignmentRole(a.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, a.Role)
	}

	query := `
		INSERT INTO bot_users (user_id, bot_id, role, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRowContext(ctx, query, a.UserID, a.BotID, string(a.Role), a.IsActive).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return &DuplicateAssignmentError{UserID: a.UserID, BotID: a.BotID}
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	return nil
}

// Get retrieves an assignment by id
func (s *Store) Get(ctx context.Context, id int64) (*Assignment, error) {
	query := `
		SELECT id, user_id, bot_id, role, is_active, created_at, updated_at
		FROM bot_users
		WHERE id = $1
	`
	return scanAssignment(s.db.QueryRowContext(ctx, query, id))
}

// GetByPair retrieves the assignment for a (user, bot) pair
func (s *Store) GetByPair(ctx context.Context, userID, botID string) (*Assignment, error) {
	query := `
		SELECT id, user_id, bot_id, role, is_active, created_at, updated_at
		FROM bot_users
		WHERE user_id = $1 AND bot_id = $2
	`
	return scanAssignment(s.db.QueryRowContext(ctx, query, userID, botID))
}

// Update applies a partial update. Only non-nil fields change; the role is
// never touched by an active-flag toggle and vice versa.
func (s *Store) Update(ctx context.Context, id int64, params UpdateParams) (*Assignment, error) {
	if params.Empty() {
		return s.Get(ctx, id)
	}
	if params.Role != nil && !access.ValidAssignmentRole(*params.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, *params.Role)
	}

	setParts := []string{"updated_at = NOW()"}
	args := []interface{}{}
	argn := 1

	if params.Role != nil {
		setParts = append(setParts, "role = $"+strconv.Itoa(argn))
		args = append(args, string(*params.Role))
		argn++
	}
	if params.IsActive != nil {
		setParts = append(setParts, "is_active = $"+strconv.Itoa(argn))
		args = append(args, *params.IsActive)
		argn++
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE bot_users SET %s
		WHERE id = $%d
		RETURNING id, user_id, bot_id, role, is_active, created_at, updated_at
	`, strings.Join(setParts, ", "), argn)

	return scanAssignment(s.db.QueryRowContext(ctx, query, args...))
}

// Delete hard-deletes an assignment. Once deleted the pair returns to
// absent and a future create for the same pair is permitted.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bot_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAssignmentNotFound
	}

	return nil
}

// ListForUser lists a principal's assignments, optionally active only
func (s *Store) ListForUser(ctx context.Context, userID string, activeOnly bool) ([]*Assignment, error) {
	query := `
		SELECT id, user_id, bot_id, role, is_active, created_at, updated_at
		FROM bot_users
		WHERE user_id = $1
	`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// ListForBot lists all assignments on a bot
func (s *Store) ListForBot(ctx context.Context, botID string) ([]*Assignment, error) {
	query := `
		SELECT id, user_id, bot_id, role, is_active, created_at, updated_at
		FROM bot_users
		WHERE bot_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

func scanAssignment(row *sql.Row) (*Assignment, error) {
	a := &Assignment{}
	var role string
	err := row.Scan(&a.ID, &a.UserID, &a.BotID, &role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	a.Role = access.Role(role)
	return a, nil
}

func scanAssignments(rows *sql.Rows) ([]*Assignment, error) {
	var out []*Assignment
	for rows.Next() {
		a := &Assignment{}
		var role string
		if err := rows.Scan(&a.ID, &a.UserID, &a.BotID, &role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.Role = access.Role(role)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assignments: %w", err)
	}
	return out, nil
}
