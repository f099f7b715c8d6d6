package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dirconsole/internal/core"
	"dirconsole/internal/directory"

	"github.com/go-chi/chi/v5"
)

type userResponse struct {
	ID          string   `json:"id"`
	DN          string   `json:"dn"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Enabled     bool     `json:"enabled"`
	Locked      bool     `json:"locked"`
	Groups      []string `json:"groups,omitempty"`
	OrgUnit     string   `json:"org_unit,omitempty"`
}

type createUserRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	OrgUnit     string `json:"org_unit"`
	Password    string `json:"password"`
}

type moveUserRequest struct {
	TargetOU string `json:"target_ou"`
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.dir.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Error("search users", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "directory search failed")
		return
	}
	res := make([]userResponse, 0, len(users))
	for _, u := range users {
		res = append(res, userToResponse(u))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	user, err := s.dir.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		s.logger.Error("get user", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "directory lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(user))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "id is required")
		return
	}
	user := &directory.User{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		OrgUnit:     req.OrgUnit,
	}
	err := s.dir.CreateUser(r.Context(), user, req.Password)
	s.auditMutation(r, core.AuditUserCreate, req.ID, nil, err)
	if err != nil {
		s.logger.Error("create user", "user_id", req.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (s *Server) handleModifyUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var attrs map[string]string
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if len(attrs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "no attributes given")
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	err := s.dir.ModifyUser(r.Context(), userID, attrs)
	s.auditMutation(r, core.AuditUserUpdate, userID, map[string]any{"attributes": keys}, err)
	s.respondMutation(w, userID, "modify user", err)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	err := s.dir.DeleteUser(r.Context(), userID)
	s.auditMutation(r, core.AuditUserDelete, userID, nil, err)
	s.respondMutation(w, userID, "delete user", err)
}

func (s *Server) handleDisableUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	err := s.dir.DisableAccount(r.Context(), userID)
	s.auditMutation(r, core.AuditUserDisable, userID, nil, err)
	s.respondMutation(w, userID, "disable user", err)
}

func (s *Server) handleEnableUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	err := s.dir.EnableAccount(r.Context(), userID)
	s.auditMutation(r, core.AuditUserEnable, userID, nil, err)
	s.respondMutation(w, userID, "enable user", err)
}

func (s *Server) handleUnlockUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	err := s.dir.UnlockAccount(r.Context(), userID)
	s.auditMutation(r, core.AuditUserUnlock, userID, nil, err)
	s.respondMutation(w, userID, "unlock user", err)
}

func (s *Server) handleMoveUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req moveUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.TargetOU) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "target_ou is required")
		return
	}
	err := s.dir.MoveUser(r.Context(), userID, req.TargetOU)
	s.auditMutation(r, core.AuditUserMove, userID, map[string]any{"target_ou": req.TargetOU}, err)
	s.respondMutation(w, userID, "move user", err)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.dir.ListGroups(r.Context())
	if err != nil {
		s.logger.Error("list groups", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "directory search failed")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	userID := chi.URLParam(r, "userID")
	err := s.dir.AddGroupMember(r.Context(), group, userID)
	s.auditMutation(r, core.AuditGroupAddMember, userID, map[string]any{"group": group}, err)
	s.respondMutation(w, userID, "add group member", err)
}

func (s *Server) handleRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	userID := chi.URLParam(r, "userID")
	err := s.dir.RemoveGroupMember(r.Context(), group, userID)
	s.auditMutation(r, core.AuditGroupRemoveMember, userID, map[string]any{"group": group}, err)
	s.respondMutation(w, userID, "remove group member", err)
}

func (s *Server) handleListOrgUnits(w http.ResponseWriter, r *http.Request) {
	units, err := s.dir.ListOrgUnits(r.Context())
	if err != nil {
		s.logger.Error("list org units", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "directory search failed")
		return
	}
	writeJSON(w, http.StatusOK, units)
}

// auditMutation records the outcome of an interactive directory mutation.
// Audit failures are logged, never surfaced to the request.
func (s *Server) auditMutation(r *http.Request, action core.AuditAction, target string, details map[string]any, opErr error) {
	entry := &core.AuditEntry{
		Action:  action,
		Actor:   actorFrom(r),
		Target:  &target,
		Details: details,
		Success: opErr == nil,
	}
	if opErr != nil {
		msg := opErr.Error()
		entry.Error = &msg
	}
	if err := s.store.InsertAuditEntry(r.Context(), entry); err != nil {
		s.logger.Error("write audit entry", "action", string(action), "err", err)
	}
}

func (s *Server) respondMutation(w http.ResponseWriter, userID, op string, err error) {
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) || errors.Is(err, directory.ErrGroupNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		s.logger.Error(op, "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func userToResponse(u *directory.User) userResponse {
	return userResponse{
		ID:          u.ID,
		DN:          u.DN,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Enabled:     u.Enabled,
		Locked:      u.Locked,
		Groups:      u.Groups,
		OrgUnit:     u.OrgUnit,
	}
}
