package assignments

import (
	"context"
	"errors"
	"strconv"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/audit"
	"github.com/botdeck/botdeck/pkg/observability"
)

// Service wraps the store with the superadmin precondition gate and audit
// logging. The gate runs immediately before every mutation, not once at
// page load, so a long-lived session cannot retain stale elevated trust
// after a role downgrade.
type Service struct {
	store   *Store
	access  *access.Service
	audit   audit.Logger
	metrics *observability.Metrics
}

// NewService creates a new assignment service. metrics may be nil.
func NewService(store *Store, accessSvc *access.Service, auditLogger audit.Logger, metrics *observability.Metrics) *Service {
	return &Service{store: store, access: accessSvc, audit: auditLogger, metrics: metrics}
}

// Create creates an assignment on behalf of actorID
func (svc *Service) Create(ctx context.Context, actorID string, a *Assignment) error {
	if err := svc.access.RequireSuperadmin(ctx, actorID); err != nil {
		svc.count("create", "denied")
		return err
	}

	err := svc.store.Create(ctx, a)
	svc.logMutation(ctx, audit.EventAssignmentCreate, actorID, a.UserID+"/"+a.BotID, err)
	if err != nil {
		var dup *DuplicateAssignmentError
		if errors.As(err, &dup) {
			svc.count("create", "conflict")
		} else {
			svc.count("create", "error")
		}
		return err
	}

	svc.count("create", "ok")
	return nil
}

// Update applies a partial update on behalf of actorID
func (svc *Service) Update(ctx context.Context, actorID string, id int64, params UpdateParams) (*Assignment, error) {
	if err := svc.access.RequireSuperadmin(ctx, actorID); err != nil {
		svc.count("update", "denied")
		return nil, err
	}

	updated, err := svc.store.Update(ctx, id, params)
	svc.logMutation(ctx, audit.EventAssignmentUpdate, actorID, strconv.FormatInt(id, 10), err)
	if err != nil {
		svc.count("update", "error")
		return nil, err
	}

	svc.count("update", "ok")
	return updated, nil
}

// Delete hard-deletes an assignment on behalf of actorID
func (svc *Service) Delete(ctx context.Context, actorID string, id int64) error {
	if err := svc.access.RequireSuperadmin(ctx, actorID); err != nil {
		svc.count("delete", "denied")
		return err
	}

	err := svc.store.Delete(ctx, id)
	svc.logMutation(ctx, audit.EventAssignmentDelete, actorID, strconv.FormatInt(id, 10), err)
	if err != nil {
		svc.count("delete", "error")
		return err
	}

	svc.count("delete", "ok")
	return nil
}

// ListForBot lists a bot's assignments; superadmin only
func (svc *Service) ListForBot(ctx context.Context, actorID, botID string) ([]*Assignment, error) {
	if err := svc.access.RequireSuperadmin(ctx, actorID); err != nil {
		return nil, err
	}
	return svc.store.ListForBot(ctx, botID)
}

// ListOwn lists the actor's own assignments; any authenticated principal
func (svc *Service) ListOwn(ctx context.Context, actorID string) ([]*Assignment, error) {
	return svc.store.ListForUser(ctx, actorID, false)
}

func (svc *Service) logMutation(ctx context.Context, eventType audit.EventType, actorID, subjectID string, err error) {
	event := audit.Event{
		Type:        eventType,
		ActorID:     actorID,
		SubjectType: "assignment",
		SubjectID:   subjectID,
		Success:     err == nil,
	}
	if err != nil {
		event.Detail = err.Error()
	}
	svc.audit.Log(ctx, event)
}

func (svc *Service) count(op, result string) {
	if svc.metrics != nil {
		svc.metrics.AssignmentMutationsTotal.WithLabelValues(op, result).Inc()
	}
}
