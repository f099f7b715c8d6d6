package core_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"dirconsole/internal/core"
	"dirconsole/internal/store"
)

func newServiceStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// faultStore injects a failure on the nth InsertTask call, including calls
// made inside a transaction.
type faultStore struct {
	core.Store
	insertTaskCalls *int
	failOnCall      int
}

func (f *faultStore) InsertTask(ctx context.Context, t *core.ScheduledTask) error {
	*f.insertTaskCalls++
	if *f.insertTaskCalls == f.failOnCall {
		return errors.New("injected insert failure")
	}
	return f.Store.InsertTask(ctx, t)
}

func (f *faultStore) WithTx(ctx context.Context, fn func(tx core.Store) error) error {
	return f.Store.WithTx(ctx, func(tx core.Store) error {
		return fn(&faultStore{Store: tx, insertTaskCalls: f.insertTaskCalls, failOnCall: f.failOnCall})
	})
}

func TestScheduleCreatesVacationAndTwoTasks(t *testing.T) {
	st := newServiceStore(t)
	svc := core.NewVacationService(st, discardLogger())
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	vacationID, err := svc.Schedule(ctx, "admin", "jdoe", start, end, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	vacation, err := st.GetVacation(ctx, vacationID)
	if err != nil {
		t.Fatalf("get vacation: %v", err)
	}
	if vacation.UserID != "jdoe" {
		t.Errorf("user_id = %q, want jdoe", vacation.UserID)
	}

	tasks, err := st.ListTasksByRelated(ctx, core.RelatedRef{Table: core.RelatedVacations, ID: vacationID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected exactly 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Type != core.TaskVacationStart || !tasks[0].RunAt.Equal(start) {
		t.Errorf("first task = %s at %v, want VACATION_START at %v", tasks[0].Type, tasks[0].RunAt, start)
	}
	if tasks[1].Type != core.TaskVacationEnd || !tasks[1].RunAt.Equal(end) {
		t.Errorf("second task = %s at %v, want VACATION_END at %v", tasks[1].Type, tasks[1].RunAt, end)
	}
	for _, task := range tasks {
		if task.Status != core.TaskStatusPending {
			t.Errorf("task %s status = %s, want PENDING", task.ID, task.Status)
		}
	}

	entries, err := st.ListAuditEntries(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != core.AuditVacationSchedule {
		t.Errorf("unexpected audit trail: %+v", entries)
	}
	if entries[0].Actor != "admin" {
		t.Errorf("audit actor = %q, want admin", entries[0].Actor)
	}
}

func TestScheduleRollsBackWhenTaskInsertFails(t *testing.T) {
	st := newServiceStore(t)
	ctx := context.Background()

	for _, failOnCall := range []int{1, 2} {
		calls := 0
		faulty := &faultStore{Store: st, insertTaskCalls: &calls, failOnCall: failOnCall}
		svc := core.NewVacationService(faulty, discardLogger())

		_, err := svc.Schedule(ctx, "admin", "jdoe",
			time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), nil)
		if err == nil {
			t.Fatalf("failOnCall=%d: expected error", failOnCall)
		}

		tasks, err := st.ListTasks(ctx)
		if err != nil {
			t.Fatalf("list tasks: %v", err)
		}
		if len(tasks) != 0 {
			t.Errorf("failOnCall=%d: %d tasks survived rollback", failOnCall, len(tasks))
		}
		entries, err := st.ListAuditEntries(ctx, 10, 0)
		if err != nil {
			t.Fatalf("list audit: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("failOnCall=%d: audit written for failed schedule", failOnCall)
		}
	}
}

func TestScheduleValidatesInput(t *testing.T) {
	st := newServiceStore(t)
	svc := core.NewVacationService(st, discardLogger())
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Schedule(ctx, "admin", "  ", start, end, nil); err == nil {
		t.Error("expected error for blank user id")
	}
	if _, err := svc.Schedule(ctx, "admin", "jdoe", time.Time{}, end, nil); err == nil {
		t.Error("expected error for zero start date")
	}
	if _, err := svc.Schedule(ctx, "admin", "jdoe", start, time.Time{}, nil); err == nil {
		t.Error("expected error for zero end date")
	}

	tasks, err := st.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("rejected schedules left %d tasks behind", len(tasks))
	}
}

func TestCancelRemovesVacationAndAllTasks(t *testing.T) {
	st := newServiceStore(t)
	svc := core.NewVacationService(st, discardLogger())
	ctx := context.Background()

	vacationID, err := svc.Schedule(ctx, "admin", "jdoe",
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// Cancellation removes terminal tasks too, it does not undo their effect.
	tasks, err := st.ListTasksByRelated(ctx, core.RelatedRef{Table: core.RelatedVacations, ID: vacationID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	executedAt := time.Now().UTC()
	if err := st.UpdateTaskStatus(ctx, tasks[0].ID, core.TaskStatusCompleted, &executedAt, nil); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	removed, err := svc.Cancel(ctx, "admin", vacationID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if _, err := st.GetVacation(ctx, vacationID); !errors.Is(err, core.ErrVacationNotFound) {
		t.Errorf("vacation still present: err = %v", err)
	}
	remaining, err := st.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d tasks survived cancellation", len(remaining))
	}

	entries, err := st.ListAuditEntries(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != core.AuditVacationCancel {
		t.Errorf("unexpected audit trail: %+v", entries)
	}
}

func TestCancelUnknownVacationRemovesNothing(t *testing.T) {
	st := newServiceStore(t)
	svc := core.NewVacationService(st, discardLogger())

	removed, err := svc.Cancel(context.Background(), "admin", "missing")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
