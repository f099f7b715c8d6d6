package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dirconsole/internal/core"

	"github.com/go-chi/chi/v5"
)

type scheduleVacationRequest struct {
	UserID      string  `json:"user_id"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Description *string `json:"description"`
}

type taskResponse struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Status       string  `json:"status"`
	RunAt        string  `json:"run_at"`
	RelatedID    string  `json:"related_id"`
	RelatedTable string  `json:"related_table"`
	CreatedAt    string  `json:"created_at"`
	ExecutedAt   *string `json:"executed_at,omitempty"`
	Error        *string `json:"error,omitempty"`
}

// handleScheduleVacation books a vacation. Date parsing and ordering are
// validated here; the scheduling service relies on that contract.
func (s *Server) handleScheduleVacation(w http.ResponseWriter, r *http.Request) {
	var req scheduleVacationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "user_id is required")
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "start_date must be an RFC3339 timestamp")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "end_date must be an RFC3339 timestamp")
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "invalid_input", "end_date must be after start_date")
		return
	}

	vacationID, err := s.vacations.Schedule(r.Context(), actorFrom(r), req.UserID, start, end, req.Description)
	if err != nil {
		s.logger.Error("schedule vacation", "user_id", req.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to schedule vacation")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"vacation_id": vacationID})
}

func (s *Server) handleCancelVacation(w http.ResponseWriter, r *http.Request) {
	vacationID := chi.URLParam(r, "vacationID")
	removed, err := s.vacations.Cancel(r.Context(), actorFrom(r), vacationID)
	if err != nil {
		s.logger.Error("cancel vacation", "vacation_id", vacationID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to cancel vacation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tasks_removed": removed})
}

func (s *Server) handleListSchedule(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		s.logger.Error("list schedule", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list schedule")
		return
	}
	res := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRemoveScheduledTask deletes a single task. An unknown id reports
// removed=false rather than an error, so operators can tell not-found apart
// from a store fault.
func (s *Server) handleRemoveScheduledTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	removed, err := s.tasks.Remove(r.Context(), taskID)
	if err != nil {
		s.logger.Error("remove scheduled task", "task_id", taskID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to remove task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func taskToResponse(t *core.ScheduledTask) taskResponse {
	res := taskResponse{
		ID:           t.ID,
		Type:         string(t.Type),
		Status:       string(t.Status),
		RunAt:        t.RunAt.UTC().Format(time.RFC3339),
		RelatedID:    t.Related.ID,
		RelatedTable: string(t.Related.Table),
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
		Error:        t.Error,
	}
	if t.ExecutedAt != nil {
		formatted := t.ExecutedAt.UTC().Format(time.RFC3339)
		res.ExecutedAt = &formatted
	}
	return res
}

// parseDate accepts RFC3339 timestamps and bare dates.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
