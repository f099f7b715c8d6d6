package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dirconsole/internal/core"
)

const taskColumns = `id, type, status, run_at, related_id, related_table, created_at, executed_at, error`

func (s *Store) InsertTask(ctx context.Context, t *core.ScheduledTask) error {
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = core.TaskStatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, string(t.Type), string(t.Status), formatTime(t.RunAt),
		t.Related.ID, string(t.Related.Table), formatTime(t.CreatedAt),
		nullableTime(t.ExecutedAt), nullableString(t.Error))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*core.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?
	`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListPendingTasks returns PENDING tasks due at or before asOf, oldest due
// first so a backlog drains in deterministic order.
func (s *Store) ListPendingTasks(ctx context.Context, asOf time.Time) ([]*core.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE status = ? AND run_at <= ?
		ORDER BY run_at ASC
	`, string(core.TaskStatusPending), formatTime(asOf))
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *Store) ListTasks(ctx context.Context) ([]*core.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY run_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *Store) ListTasksByRelated(ctx context.Context, ref core.RelatedRef) ([]*core.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE related_table = ? AND related_id = ?
		ORDER BY run_at ASC
	`, string(ref.Table), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("query tasks by related: %w", err)
	}
	return collectTasks(rows)
}

// UpdateTaskStatus transitions a task and records its terminal metadata. No
// legal-prior-state validation happens here; callers must not race on the
// same id.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status core.TaskStatus, executedAt *time.Time, errMsg *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET status = ?, executed_at = ?, error = ?
		WHERE id = ?
	`, string(status), nullableTime(executedAt), nullableString(errMsg), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes one task. The bool reports whether a row existed.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// DeleteTasksByRelated removes every task referencing the given entity and
// returns how many were deleted.
func (s *Store) DeleteTasksByRelated(ctx context.Context, ref core.RelatedRef) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduled_tasks WHERE related_table = ? AND related_id = ?
	`, string(ref.Table), ref.ID)
	if err != nil {
		return 0, fmt.Errorf("delete tasks by related: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func collectTasks(rows *sql.Rows) ([]*core.ScheduledTask, error) {
	defer rows.Close()
	var tasks []*core.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.ScheduledTask, error) {
	var (
		id           string
		taskType     string
		status       string
		runAt        string
		relatedID    string
		relatedTable string
		createdAt    string
		executedAt   sql.NullString
		errMsg       sql.NullString
	)
	if err := scanner.Scan(&id, &taskType, &status, &runAt, &relatedID, &relatedTable, &createdAt, &executedAt, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task := &core.ScheduledTask{
		ID:        id,
		Type:      core.TaskType(taskType),
		Status:    core.TaskStatus(status),
		RunAt:     mustParseTime(runAt),
		Related:   core.RelatedRef{Table: core.RelatedTable(relatedTable), ID: relatedID},
		CreatedAt: mustParseTime(createdAt),
	}
	if executedAt.Valid {
		t := mustParseTime(executedAt.String)
		task.ExecutedAt = &t
	}
	if errMsg.Valid {
		task.Error = &errMsg.String
	}
	return task, nil
}
