// Package invites manages pending invitations and their reconciliation
// with newly created accounts.
package invites

import (
	"errors"
	"fmt"
	"time"

	"github.com/botdeck/botdeck/pkg/access"
)

// DefaultExpiry is how long an invitation stays live
const DefaultExpiry = 7 * 24 * time.Hour

// Invitation is a pending grant for an email address that has no account
// yet. At most one live invitation exists per email; it is consumed exactly
// once when the invited email completes account setup.
type Invitation struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	Surname   string      `json:"surname"`
	Role      access.Role `json:"role"`
	BotID     string      `json:"bot_id"`
	InvitedBy string      `json:"invited_by,omitempty"`
	InvitedAt time.Time   `json:"invited_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Expired reports whether the invitation is past its expiry
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// ErrInvitationNotFound is returned when no invitation matches
var ErrInvitationNotFound = errors.New("invitation not found")

// ErrInvitationExpired is returned when accepting an expired invitation
var ErrInvitationExpired = errors.New("invitation expired")

// ErrAccountExists is returned when inviting an email that already has an
// active account.
var ErrAccountExists = errors.New("an account already exists for this email")

// DuplicateInvitationError reports a live invitation already exists for
// the email.
type DuplicateInvitationError struct {
	Email string
}

func (e *DuplicateInvitationError) Error() string {
	return fmt.Sprintf("a live invitation already exists for %s", e.Email)
}

// PartialReconciliationError reports that reconciliation committed some but
// not all of its steps. It carries the identifiers needed for manual
// remediation and is retryable.
type PartialReconciliationError struct {
	Email       string
	PrincipalID string
	Step        string
	Err         error
}

func (e *PartialReconciliationError) Error() string {
	return fmt.Sprintf("partial reconciliation for %s (principal %s) at step %s: %v",
		e.Email, e.PrincipalID, e.Step, e.Err)
}

func (e *PartialReconciliationError) Unwrap() error {
	return e.Err
}
