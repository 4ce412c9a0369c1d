// Package audit records security-relevant mutations (assignment and
// invitation lifecycle) for later review. Audit writes are best-effort:
// a failed audit insert is logged but never fails the operation it records.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/botdeck/botdeck/pkg/observability"
)

// EventType identifies the kind of audited operation
type EventType string

const (
	EventAssignmentCreate    EventType = "assignment.create"
	EventAssignmentUpdate    EventType = "assignment.update"
	EventAssignmentDelete    EventType = "assignment.delete"
	EventInvitationCreate    EventType = "invitation.create"
	EventInvitationCancel    EventType = "invitation.cancel"
	EventInvitationReconcile EventType = "invitation.reconcile"
)

// Event is a single audit record
type Event struct {
	Type        EventType `json:"type"`
	ActorID     string    `json:"actor_id,omitempty"`
	SubjectType string    `json:"subject_type"`
	SubjectID   string    `json:"subject_id"`
	Success     bool      `json:"success"`
	Detail      string    `json:"detail,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event Event)
}

// DBLogger writes audit events to the audit_log table
type DBLogger struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB, logger *observability.Logger) *DBLogger {
	return &DBLogger{db: db, logger: logger}
}

// Log inserts the event, logging (not returning) any failure
func (l *DBLogger) Log(ctx context.Context, event Event) {
	query := `
		INSERT INTO audit_log (event_type, actor_id, subject_type, subject_id, success, detail, request_id)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7)
	`
	_, err := l.db.ExecContext(ctx, query,
		string(event.Type),
		event.ActorID,
		event.SubjectType,
		event.SubjectID,
		event.Success,
		event.Detail,
		event.RequestID,
	)
	if err != nil {
		l.logger.WithError(err).WithFields(map[string]interface{}{
			"event_type": event.Type,
			"subject_id": event.SubjectID,
		}).Warn("Failed to write audit event")
	}
}

// NopLogger discards all events. Used in tests and the janitor binary.
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(ctx context.Context, event Event) {}
