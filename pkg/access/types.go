// Package access implements role classification and accessible-resource
// resolution for the BotDeck dashboard.
//
// Every request performs its own classification; results are never cached
// across requests, so a promotion or demotion takes effect on the very next
// call. All ambiguity resolves to the least-privileged outcome.
package access

import (
	"errors"
	"sort"
)

// Role is a principal's effective dashboard role
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleMember     Role = "member"
	// RoleNone means no access at all
	RoleNone Role = ""
)

// ValidAssignmentRole reports whether r may appear on an assignment row.
// Superadmin is never assigned per-bot; it comes from the superusers table.
func ValidAssignmentRole(r Role) bool {
	return r == RoleAdmin || r == RoleMember
}

// ErrClassificationUnavailable is returned when both the primary superadmin
// check and the fallback table lookup failed. Callers must fail closed and
// treat the principal as having no role.
var ErrClassificationUnavailable = errors.New("role classification unavailable")

// ErrSuperadminRequired is returned by precondition gates on operations
// restricted to superadmins.
var ErrSuperadminRequired = errors.New("superadmin role required")

// ResourceSet is a deduplicated set of bot identifiers
type ResourceSet map[string]struct{}

// Contains reports whether the set includes the given bot id
func (s ResourceSet) Contains(botID string) bool {
	_, ok := s[botID]
	return ok
}

// Add inserts a bot id
func (s ResourceSet) Add(botID string) {
	s[botID] = struct{}{}
}

// IDs returns the members sorted for stable JSON output
func (s ResourceSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolvedAccess is the full access picture for one principal on one
// request. It is derived, never persisted.
type ResolvedAccess struct {
	Role         Role        `json:"role"`
	IsSuperadmin bool        `json:"is_superadmin"`
	BotIDs       ResourceSet `json:"-"`
}
