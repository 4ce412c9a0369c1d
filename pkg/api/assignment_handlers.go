package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/botdeck/botdeck/pkg/access"
	"github.com/botdeck/botdeck/pkg/assignments"
	"github.com/botdeck/botdeck/pkg/httputil"
)

type createAssignmentRequest struct {
	UserID   string      `json:"user_id"`
	BotID    string      `json:"bot_id"`
	Role     access.Role `json:"role"`
	IsActive *bool       `json:"is_active,omitempty"`
}

type updateAssignmentRequest struct {
	Role     *access.Role `json:"role,omitempty"`
	IsActive *bool        `json:"is_active,omitempty"`
}

func (s *Server) createAssignment(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	var req createAssignmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if req.UserID == "" || req.BotID == "" {
		httputil.WriteValidationError(w, "user_id and bot_id are required")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	a := &assignments.Assignment{
		UserID:   req.UserID,
		BotID:    req.BotID,
		Role:     req.Role,
		IsActive: active,
	}
	if err := s.assignments.Create(r.Context(), principal.ID, a); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteCreated(w, a)
}

func (s *Server) updateAssignment(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid assignment id")
		return
	}

	var req updateAssignmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	updated, err := s.assignments.Update(r.Context(), principal.ID, id, assignments.UpdateParams{
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid assignment id")
		return
	}

	if err := s.assignments.Delete(r.Context(), principal.ID, id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}

func (s *Server) listBotAssignments(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	botID := mux.Vars(r)["botID"]
	list, err := s.assignments.ListForBot(r.Context(), principal.ID, botID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"assignments": emptyIfNil(list)})
}

func (s *Server) listOwnAssignments(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	list, err := s.assignments.ListOwn(r.Context(), principal.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"assignments": emptyIfNil(list)})
}

func emptyIfNil(list []*assignments.Assignment) []*assignments.Assignment {
	if list == nil {
		return []*assignments.Assignment{}
	}
	return list
}
