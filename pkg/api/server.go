package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/assignments"
	"github.com/botdeck/botdeck/pkg/httputil"
	"github.com/botdeck/botdeck/pkg/identity"
	"github.com/botdeck/botdeck/pkg/invites"
	"github.com/botdeck/botdeck/pkg/middleware"
	"github.com/botdeck/botdeck/pkg/observability"
	"github.com/botdeck/botdeck/pkg/storage/postgres"
)

// Server represents our API server
type Server struct {
	router      *mux.Router
	logger      *observability.Logger
	access      *access.Service
	assignments *assignments.Service
	invites     *invites.Reconciler
	profiles    *identity.ProfileStore
}

// Options carries the optional middleware and probes wired into the router
type Options struct {
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
}

// NewServer creates a new API server
func NewServer(
	accessSvc *access.Service,
	assignmentSvc *assignments.Service,
	reconciler *invites.Reconciler,
	profiles *identity.ProfileStore,
	logger *observability.Logger,
	opts Options,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		access:      accessSvc,
		assignments: assignmentSvc,
		invites:     reconciler,
		profiles:    profiles,
	}

	s.setupRoutes(opts)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	s.router.Use(middleware.RequestID)

	if opts.Health != nil {
		s.router.HandleFunc("/healthz", opts.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", opts.Health.Readiness).Methods("GET")
	}
	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics.Handler()).Methods("GET")
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	// Metrics first so rate-limit 429s and auth 401s are counted too.
	if opts.Metrics != nil {
		v1.Use(metricsMiddleware(opts.Metrics))
	}
	if opts.RateLimit != nil {
		v1.Use(opts.RateLimit.Handler)
	}
	if opts.Auth != nil {
		v1.Use(opts.Auth.Handler)
	}

	// Access resolution
	v1.HandleFunc("/access/me", s.resolveOwnAccess).Methods("GET")

	// Assignment lifecycle
	v1.HandleFunc("/assignments", s.createAssignment).Methods("POST")
	v1.HandleFunc("/assignments", s.listOwnAssignments).Methods("GET")
	v1.HandleFunc("/assignments/{id:[0-9]+}", s.updateAssignment).Methods("PATCH")
	v1.HandleFunc("/assignments/{id:[0-9]+}", s.deleteAssignment).Methods("DELETE")
	v1.HandleFunc("/bots/{botID}/assignments", s.listBotAssignments).Methods("GET")

	// Invitations
	v1.HandleFunc("/invitations", s.createInvitation).Methods("POST")
	v1.HandleFunc("/invitations", s.listInvitations).Methods("GET")
	v1.HandleFunc("/invitations/accept", s.acceptInvitation).Methods("POST")
	v1.HandleFunc("/invitations/{id}", s.cancelInvitation).Methods("DELETE")
}

// metricsMiddleware records request counts and latency labeled by the route
// template rather than the raw path, keeping label cardinality bounded.
func metricsMiddleware(m *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					path = tpl
				}
			}
			m.InstrumentHandler(path, next).ServeHTTP(w, r)
		})
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registration
func (s *Server) Router() *mux.Router {
	return s.router
}

// principal extracts the authenticated principal or writes a 401
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (*identity.Principal, bool) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "not authenticated")
		return nil, false
	}
	return principal, true
}

// writeDomainError maps domain errors onto HTTP statuses. Unknown errors
// become 500s with the detail logged server-side only.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		dupAssignment *assignments.DuplicateAssignmentError
		dupInvitation *invites.DuplicateInvitationError
		partial       *invites.PartialReconciliationError
	)

	switch {
	case errors.Is(err, identity.ErrNotAuthenticated):
		httputil.WriteUnauthorized(w, "not authenticated")

	case errors.Is(err, access.ErrSuperadminRequired):
		httputil.WriteForbidden(w, "superadmin role required")

	case errors.Is(err, access.ErrClassificationUnavailable):
		// Fail closed but tell the caller the denial is infrastructural,
		// not a verdict on their permissions.
		httputil.WriteErrorCode(w, http.StatusServiceUnavailable,
			"classification_unavailable", "role classification temporarily unavailable")

	case errors.Is(err, postgres.ErrElevatedNotConfigured):
		httputil.WriteErrorCode(w, http.StatusInternalServerError,
			"configuration_error", "elevated database credential not configured")

	case errors.As(err, &dupAssignment):
		httputil.WriteConflict(w, err.Error())

	case errors.As(err, &dupInvitation):
		httputil.WriteConflict(w, err.Error())

	case errors.Is(err, invites.ErrAccountExists):
		httputil.WriteConflict(w, err.Error())

	case errors.As(err, &partial):
		httputil.WriteErrorCode(w, http.StatusInternalServerError,
			"partial_reconciliation", err.Error())

	case errors.Is(err, invites.ErrInvitationExpired):
		httputil.WriteErrorCode(w, http.StatusGone, "invitation_expired", err.Error())

	case errors.Is(err, assignments.ErrAssignmentNotFound),
		errors.Is(err, invites.ErrInvitationNotFound),
		errors.Is(err, identity.ErrProfileNotFound):
		httputil.WriteNotFound(w, err.Error())

	case errors.Is(err, assignments.ErrInvalidRole):
		httputil.WriteValidationError(w, err.Error())

	default:
		s.logger.WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
