// Package assignments manages the lifecycle of (user, bot, role) assignment
// records: create, partial update, and hard delete, with one-assignment-per-
// pair uniqueness.
package assignments

import (
	"errors"
	"fmt"
	"time"

	"github.com/botdeck/botdeck/pkg/access"
)

// Assignment grants one principal one role on one bot. At most one
// assignment exists per (user, bot) pair.
type Assignment struct {
	ID        int64       `json:"id"`
	UserID    string      `json:"user_id"`
	BotID     string      `json:"bot_id"`
	Role      access.Role `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ErrAssignmentNotFound is returned when no assignment matches
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrInvalidRole is returned for roles other than admin or member
var ErrInvalidRole = errors.New("assignment role must be admin or member")

// DuplicateAssignmentError reports a uniqueness conflict with enough detail
// to explain which pair collided.
type DuplicateAssignmentError struct {
	UserID string
	BotID  string
}

func (e *DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("assignment already exists for user %s on bot %s", e.UserID, e.BotID)
}

// UpdateParams carries a partial update; nil fields are left unchanged
type UpdateParams struct {
	Role     *access.Role `json:"role,omitempty"`
	IsActive *bool        `json:"is_active,omitempty"`
}

// Empty reports whether the update changes nothing
func (p UpdateParams) Empty() bool {
	return p.Role == nil && p.IsActive == nil
}
