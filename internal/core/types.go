package core

import (
	"time"
)

// TaskType tags the action a scheduled task performs. The store treats it as
// an opaque string so new task kinds can be added without a schema change.
type TaskType string

const (
	TaskVacationStart TaskType = "VACATION_START"
	TaskVacationEnd   TaskType = "VACATION_END"
)

// TaskStatus describes the lifecycle state of a scheduled task.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING"
	// TaskStatusRunning is reserved for a future claim step that would make
	// overlapping worker instances safe. The current worker never sets it.
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// RelatedTable names the table a task's related entity lives in.
type RelatedTable string

const RelatedVacations RelatedTable = "vacations"

// RelatedRef is the polymorphic reference from a task to the entity it acts
// on. Unknown tables must be handled explicitly at execution time so rows
// written by a newer deployment still deserialize.
type RelatedRef struct {
	Table RelatedTable
	ID    string
}

// Vacation is a booked absence for a directory account. The user id is not
// validated against the directory at creation time.
type Vacation struct {
	ID          string
	UserID      string
	StartDate   time.Time
	EndDate     time.Time
	Description *string
	CreatedAt   time.Time
}

// ScheduledTask is a persisted intent to perform an action at a point in
// time. It becomes eligible for execution once RunAt is reached.
type ScheduledTask struct {
	ID         string
	Type       TaskType
	Status     TaskStatus
	RunAt      time.Time
	Related    RelatedRef
	CreatedAt  time.Time
	ExecutedAt *time.Time
	Error      *string
}

// AuditAction tags an audit entry with the operation it records.
type AuditAction string

const (
	AuditVacationSchedule       AuditAction = "vacation.schedule"
	AuditVacationCancel         AuditAction = "vacation.cancel"
	AuditVacationExecuteDisable AuditAction = "vacation.execute_disable"
	AuditVacationExecuteEnable  AuditAction = "vacation.execute_enable"
	AuditUserCreate             AuditAction = "user.create"
	AuditUserUpdate             AuditAction = "user.update"
	AuditUserDelete             AuditAction = "user.delete"
	AuditUserDisable            AuditAction = "user.disable"
	AuditUserEnable             AuditAction = "user.enable"
	AuditUserUnlock             AuditAction = "user.unlock"
	AuditUserMove               AuditAction = "user.move"
	AuditGroupAddMember         AuditAction = "group.add_member"
	AuditGroupRemoveMember      AuditAction = "group.remove_member"
)

// AuditActorSystem is the actor recorded for worker-initiated operations.
const AuditActorSystem = "system"

// AuditEntry is one append-only record of a mutating operation.
type AuditEntry struct {
	ID      string
	At      time.Time
	Action  AuditAction
	Actor   string
	Target  *string
	Details map[string]any
	Success bool
	Error   *string
}
