package core

import (
	"context"
	"log/slog"
)

// TaskService is the read/cancel façade over the task schedule used by
// operator-facing surfaces.
type TaskService struct {
	store  Store
	logger *slog.Logger
}

func NewTaskService(store Store, logger *slog.Logger) *TaskService {
	return &TaskService{store: store, logger: logger}
}

// List returns every scheduled task ordered by run time.
func (s *TaskService) List(ctx context.Context) ([]*ScheduledTask, error) {
	return s.store.ListTasks(ctx)
}

// Remove deletes a single task. The bool reports whether a row was actually
// removed, so callers can tell not-found apart from a store fault.
func (s *TaskService) Remove(ctx context.Context, id string) (bool, error) {
	removed, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("task removed from schedule", "task_id", id)
	}
	return removed, nil
}
