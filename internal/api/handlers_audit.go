package api

import (
	"net/http"
	"time"

	"dirconsole/internal/core"
)

type auditEntryResponse struct {
	ID      string         `json:"id"`
	At      string         `json:"at"`
	Action  string         `json:"action"`
	Actor   string         `json:"actor"`
	Target  *string        `json:"target,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Success bool           `json:"success"`
	Error   *string        `json:"error,omitempty"`
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	entries, err := s.store.ListAuditEntries(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list audit entries", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list audit entries")
		return
	}
	res := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, auditEntryToResponse(e))
	}
	writeJSON(w, http.StatusOK, res)
}

func auditEntryToResponse(e *core.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:      e.ID,
		At:      e.At.UTC().Format(time.RFC3339),
		Action:  string(e.Action),
		Actor:   e.Actor,
		Target:  e.Target,
		Details: e.Details,
		Success: e.Success,
		Error:   e.Error,
	}
}
