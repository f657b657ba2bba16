// Package task defines the Task, TaskAttempt, ExecutionProcess, LogEntry
// and TaskVariable entities and their store ports — the durable core that
// the engine (internal/engine) drives and the sync publisher
// (internal/syncpub) mirrors to the hive.
package task

import (
	"context"
	"fmt"
	"time"

	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inprogress"
	StatusInReview   Status = "inreview"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// ValidStatuses is the known enum set referenced by ValidateStatus's error.
var ValidStatuses = []Status{StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusCancelled}

// ValidateStatus rejects any string outside the five known statuses.
func ValidateStatus(s string) (Status, error) {
	for _, v := range ValidStatuses {
		if string(v) == s {
			return v, nil
		}
	}
	return "", vkerrors.ValidationError(fmt.Sprintf("invalid task status %q, must be one of %v", s, ValidStatuses))
}

// Task is a unit of work against a Project.
type Task struct {
	ID          string  `json:"id" db:"id"`
	ProjectID   string  `json:"project_id" db:"project_id"`
	Title       string  `json:"title" db:"title"`
	Description *string `json:"description,omitempty" db:"description"`
	Status      Status  `json:"status" db:"status"`

	ParentTaskID *string `json:"parent_task_id,omitempty" db:"parent_task_id"`
	SharedTaskID *string `json:"shared_task_id,omitempty" db:"shared_task_id"`

	ArchivedAt *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	ActivityAt *time.Time `json:"activity_at,omitempty" db:"activity_at"`

	// Remote mirror fields. RemoteVersion and the assignee fields are set
	// through Store.UpdateRemoteAssignee; internal/syncpub does not write them.
	RemoteVersion        int64      `json:"remote_version" db:"remote_version"`
	RemoteAssigneeID      *string    `json:"remote_assignee_id,omitempty" db:"remote_assignee_id"`
	RemoteAssigneeName    *string    `json:"remote_assignee_name,omitempty" db:"remote_assignee_name"`
	RemoteLastSyncedAt    *time.Time `json:"remote_last_synced_at,omitempty" db:"remote_last_synced_at"`
	RemoteStreamNodeID    *string    `json:"remote_stream_node_id,omitempty" db:"remote_stream_node_id"`
	RemoteStreamUpdatedAt *time.Time `json:"remote_stream_updated_at,omitempty" db:"remote_stream_updated_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate enforces the write-site invariant named in spec §3 that
// parent/shared task id cannot both be set. The store's foreign key requires
// parent_task_id to name an existing task; whether that task belongs to the
// same project is not checked.
func (t *Task) Validate() error {
	if t.ParentTaskID != nil && t.SharedTaskID != nil {
		return vkerrors.ValidationError("task cannot set both parent_task_id and shared_task_id")
	}
	return nil
}

// CreateAndStartParams is the body of POST /tasks/create-and-start.
type CreateAndStartParams struct {
	ProjectID         string  `json:"project_id" validate:"required"`
	Title             string  `json:"title" validate:"required"`
	Description       *string `json:"description,omitempty"`
	ExecutorProfileID string  `json:"executor_profile_id" validate:"required"`
	BaseBranch        string  `json:"base_branch" validate:"required"`
	UseParentWorktree bool    `json:"use_parent_worktree,omitempty"`
}

// AssignParams is the body of POST /tasks/{id}/assign (spec §6). Version is
// the caller's last-seen RemoteVersion; the store rejects the call with a
// conflict error if the task has since been reassigned elsewhere (spec §7:
// "Conflict: attempt to mutate a stale version").
type AssignParams struct {
	AssigneeID   string `json:"assignee_id" validate:"required"`
	AssigneeName string `json:"assignee_name,omitempty"`
	Version      int64  `json:"version"`
}

// Store is the persistence port for tasks.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// UpdateStatus atomically sets status, bumps updated_at/activity_at, and
	// clears any activity-dismissal for the task (spec §3, §8 invariant 5).
	UpdateStatus(ctx context.Context, id string, status Status) error
	Update(ctx context.Context, t *Task) error
	Archive(ctx context.Context, id string, archived bool) error
	// Delete nullifies children's parent_task_id rather than cascading
	// (spec §3 invariant (d)).
	Delete(ctx context.Context, id string) error
	ListByProject(ctx context.Context, projectID string, includeArchived bool) ([]*Task, error)
	ListAll(ctx context.Context) ([]*Task, error)
	// UpdateRemoteAssignee sets the remote assignee fields and bumps
	// RemoteVersion, failing with vkerrors.ErrConflict if expectedVersion no
	// longer matches the task's current remote_version.
	UpdateRemoteAssignee(ctx context.Context, id string, assigneeID, assigneeName string, expectedVersion int64) error
}
