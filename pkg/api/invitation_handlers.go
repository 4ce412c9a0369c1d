package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/httputil"
	"github.com/botdeck/botdeck/pkg/invites"
)

type createInvitationRequest struct {
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	Surname   string      `json:"surname"`
	Role      access.Role `json:"role"`
	BotID     string      `json:"bot_id"`
}

func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	var req createInvitationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.BotID == "" {
		httputil.WriteValidationError(w, "email and bot_id are required")
		return
	}

	inv := &invites.Invitation{
		Email:     req.Email,
		FirstName: req.FirstName,
		Surname:   req.Surname,
		Role:      req.Role,
		BotID:     req.BotID,
	}
	if err := s.invites.Invite(r.Context(), principal.ID, inv); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteCreated(w, inv)
}

func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	list, err := s.invites.List(r.Context(), principal.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []*invites.Invitation{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{"invitations": list})
}

func (s *Server) cancelInvitation(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	if err := s.invites.Cancel(r.Context(), principal.ID, mux.Vars(r)["id"]); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}

// acceptInvitation reconciles the live invitation for the caller's own
// email. There is no body: the invitation is located by the authenticated
// identity, never by a client-supplied email.
func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	assignment, err := s.invites.Reconcile(r.Context(), principal)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteCreated(w, assignment)
}
