package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrVacationNotFound = errors.New("vacation not found")
	ErrTaskNotFound     = errors.New("task not found")
)

// Store abstracts the persistence layer used by the services and the worker.
// WithTx runs fn against a transaction-bound view of the store; the
// transaction commits when fn returns nil and rolls back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	InsertVacation(ctx context.Context, v *Vacation) error
	GetVacation(ctx context.Context, id string) (*Vacation, error)
	DeleteVacation(ctx context.Context, id string) error

	InsertTask(ctx context.Context, t *ScheduledTask) error
	GetTask(ctx context.Context, id string) (*ScheduledTask, error)
	// ListPendingTasks returns PENDING tasks with run_at <= asOf, oldest due
	// first.
	ListPendingTasks(ctx context.Context, asOf time.Time) ([]*ScheduledTask, error)
	ListTasks(ctx context.Context) ([]*ScheduledTask, error)
	ListTasksByRelated(ctx context.Context, ref RelatedRef) ([]*ScheduledTask, error)
	UpdateTaskStatus(ctx context.Context, id string, status TaskStatus, executedAt *time.Time, errMsg *string) error
	DeleteTask(ctx context.Context, id string) (bool, error)
	DeleteTasksByRelated(ctx context.Context, ref RelatedRef) (int, error)

	InsertAuditEntry(ctx context.Context, e *AuditEntry) error
	ListAuditEntries(ctx context.Context, limit, offset int) ([]*AuditEntry, error)
}
