package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// VacationService maintains the invariant that every vacation has exactly one
// VACATION_START and one VACATION_END task until cancellation removes all
// three records together.
type VacationService struct {
	store  Store
	logger *slog.Logger
}

func NewVacationService(store Store, logger *slog.Logger) *VacationService {
	return &VacationService{store: store, logger: logger}
}

// Schedule books a vacation and its two derived tasks in a single
// transaction. Date ordering (end after start) is the caller's contract and
// is not re-checked here. Returns the new vacation id.
func (s *VacationService) Schedule(ctx context.Context, actor, userID string, start, end time.Time, description *string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if start.IsZero() || end.IsZero() {
		return "", fmt.Errorf("start and end dates are required")
	}

	vacation := &Vacation{
		ID:          NewID(),
		UserID:      userID,
		StartDate:   start,
		EndDate:     end,
		Description: description,
	}
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.InsertVacation(ctx, vacation); err != nil {
			return fmt.Errorf("insert vacation: %w", err)
		}
		related := RelatedRef{Table: RelatedVacations, ID: vacation.ID}
		startTask := &ScheduledTask{
			ID:      NewID(),
			Type:    TaskVacationStart,
			Status:  TaskStatusPending,
			RunAt:   start,
			Related: related,
		}
		if err := tx.InsertTask(ctx, startTask); err != nil {
			return fmt.Errorf("insert start task: %w", err)
		}
		endTask := &ScheduledTask{
			ID:      NewID(),
			Type:    TaskVacationEnd,
			Status:  TaskStatusPending,
			RunAt:   end,
			Related: related,
		}
		if err := tx.InsertTask(ctx, endTask); err != nil {
			return fmt.Errorf("insert end task: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.audit(ctx, &AuditEntry{
		Action: AuditVacationSchedule,
		Actor:  actor,
		Target: &userID,
		Details: map[string]any{
			"vacation_id": vacation.ID,
			"start_date":  start.UTC().Format(time.RFC3339),
			"end_date":    end.UTC().Format(time.RFC3339),
		},
		Success: true,
	})
	s.logger.Info("vacation scheduled", "vacation_id", vacation.ID, "user_id", userID)
	return vacation.ID, nil
}

// Cancel removes the vacation and every task referencing it in a single
// transaction. Already-terminal tasks are simply deleted from the schedule;
// an already-applied disable or enable is not undone. Returns the number of
// tasks removed.
func (s *VacationService) Cancel(ctx context.Context, actor, vacationID string) (int, error) {
	var removed int
	err := s.store.WithTx(ctx, func(tx Store) error {
		n, err := tx.DeleteTasksByRelated(ctx, RelatedRef{Table: RelatedVacations, ID: vacationID})
		if err != nil {
			return fmt.Errorf("delete tasks: %w", err)
		}
		removed = n
		if err := tx.DeleteVacation(ctx, vacationID); err != nil {
			return fmt.Errorf("delete vacation: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.audit(ctx, &AuditEntry{
		Action:  AuditVacationCancel,
		Actor:   actor,
		Details: map[string]any{"vacation_id": vacationID, "tasks_removed": removed},
		Success: true,
	})
	s.logger.Info("vacation canceled", "vacation_id", vacationID, "tasks_removed", removed)
	return removed, nil
}

// Get returns a vacation by id.
func (s *VacationService) Get(ctx context.Context, vacationID string) (*Vacation, error) {
	return s.store.GetVacation(ctx, vacationID)
}

// audit writes an entry without letting a sink failure escape into the
// caller's control flow.
func (s *VacationService) audit(ctx context.Context, e *AuditEntry) {
	if err := s.store.InsertAuditEntry(ctx, e); err != nil {
		s.logger.Error("write audit entry", "action", string(e.Action), "err", err)
	}
}
