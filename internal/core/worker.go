package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"dirconsole/internal/directory"
	"dirconsole/internal/notify"
)

// Worker executes due scheduled tasks against the directory. It is designed
// to run as a single periodic batch process; tasks within a batch are
// processed strictly sequentially and one task's failure never aborts the
// rest of the batch.
//
// The worker keeps no state of its own. If the process dies mid-batch,
// completed tasks stay completed and the in-flight task stays PENDING, so the
// next invocation re-attempts it. A crash between the directory call and the
// status update therefore re-applies the mutation; the claim step that would
// shrink that window (PENDING -> RUNNING before the call) is not implemented.
type Worker struct {
	store    Store
	dir      directory.Client
	notifier notify.Notifier
	logger   *slog.Logger

	now func() time.Time
}

// Cadence controls when Run triggers a batch. When Interval is positive it
// takes precedence over Schedule. Location sets the timezone cron fields are
// evaluated in; nil means system local time.
type Cadence struct {
	Schedule cron.Schedule
	Interval time.Duration
	Location *time.Location
}

func NewWorker(store Store, dir directory.Client, notifier notify.Notifier, logger *slog.Logger) *Worker {
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}
	return &Worker{
		store:    store,
		dir:      dir,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Run triggers RunOnce on the given cadence until ctx is canceled.
func (w *Worker) Run(ctx context.Context, cadence Cadence) {
	if cadence.Interval > 0 {
		w.logger.Info("worker started", "interval", cadence.Interval)
		ticker := time.NewTicker(cadence.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.RunOnce(ctx); err != nil {
					w.logger.Error("worker run", "err", err)
				}
			}
		}
	}

	location := cadence.Location
	if location == nil {
		location = time.Local
	}
	w.logger.Info("worker started", "cadence", "cron")
	for {
		next := cadence.Schedule.Next(w.now().In(location))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("worker run", "err", err)
			}
		}
	}
}

// RunOnce fetches the tasks due now and processes them. Tasks that become due
// while the batch is running wait for the next invocation. A nil return only
// means the batch ran; individual task failures are recorded on the tasks
// themselves.
func (w *Worker) RunOnce(ctx context.Context) error {
	now := w.now()
	due, err := w.store.ListPendingTasks(ctx, now)
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	w.logger.Info("processing due tasks", "count", len(due))
	for _, task := range due {
		w.processTask(ctx, task, now)
	}
	return nil
}

func (w *Worker) processTask(ctx context.Context, task *ScheduledTask, now time.Time) {
	if task.Related.Table != RelatedVacations {
		w.failTask(ctx, task, fmt.Sprintf("unknown related table %q", task.Related.Table))
		return
	}
	vacation, err := w.store.GetVacation(ctx, task.Related.ID)
	if errors.Is(err, ErrVacationNotFound) {
		w.failTask(ctx, task, "related vacation not found")
		return
	}
	if err != nil {
		w.failTask(ctx, task, fmt.Sprintf("load related vacation: %v", err))
		return
	}
	if vacation.UserID == "" {
		w.failTask(ctx, task, "user id missing on related vacation")
		return
	}

	var action AuditAction
	var dispatchErr error
	switch task.Type {
	case TaskVacationStart:
		action = AuditVacationExecuteDisable
		dispatchErr = w.dir.DisableAccount(ctx, vacation.UserID)
	case TaskVacationEnd:
		action = AuditVacationExecuteEnable
		dispatchErr = w.dir.EnableAccount(ctx, vacation.UserID)
	default:
		// A newer deployment may own this task kind. Leave it PENDING so that
		// worker can pick it up.
		w.logger.Warn("unknown task type, skipping", "task_id", task.ID, "type", string(task.Type))
		return
	}

	details := map[string]any{
		"task_id":     task.ID,
		"vacation_id": vacation.ID,
		"run_at":      task.RunAt.UTC().Format(time.RFC3339),
	}
	if dispatchErr != nil {
		msg := dispatchErr.Error()
		w.failTask(ctx, task, msg)
		w.audit(ctx, &AuditEntry{
			Action:  action,
			Actor:   AuditActorSystem,
			Target:  &vacation.UserID,
			Details: details,
			Success: false,
			Error:   &msg,
		})
		return
	}

	executedAt := now
	if err := w.store.UpdateTaskStatus(ctx, task.ID, TaskStatusCompleted, &executedAt, nil); err != nil {
		w.logger.Error("mark task completed", "task_id", task.ID, "err", err)
	}
	w.audit(ctx, &AuditEntry{
		Action:  action,
		Actor:   AuditActorSystem,
		Target:  &vacation.UserID,
		Details: details,
		Success: true,
	})
	w.logger.Info("task executed", "task_id", task.ID, "type", string(task.Type), "user_id", vacation.UserID)
}

// failTask marks the task FAILED with a message. There is no automatic retry:
// re-applying a directory mutation whose idempotency is unknown could cause
// harm, so a failed task waits for operator intervention.
func (w *Worker) failTask(ctx context.Context, task *ScheduledTask, msg string) {
	executedAt := w.now()
	if err := w.store.UpdateTaskStatus(ctx, task.ID, TaskStatusFailed, &executedAt, &msg); err != nil {
		w.logger.Error("mark task failed", "task_id", task.ID, "err", err)
	}
	w.logger.Warn("task failed", "task_id", task.ID, "type", string(task.Type), "reason", msg)
	body := fmt.Sprintf("task %s (%s) failed: %s", task.ID, task.Type, msg)
	if err := w.notifier.Send(ctx, "scheduled task failed", body); err != nil {
		w.logger.Warn("send failure alert", "task_id", task.ID, "err", err)
	}
}

func (w *Worker) audit(ctx context.Context, e *AuditEntry) {
	if err := w.store.InsertAuditEntry(ctx, e); err != nil {
		w.logger.Error("write audit entry", "action", string(e.Action), "err", err)
	}
}
