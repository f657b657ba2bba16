// Package activity defines the activity-dismissal, activity-feed and
// dashboard views that supplement spec.md's Task lifecycle behaviors, per
// original_source's crates/db/src/models/{activity_dismissal,activity_feed,dashboard}.rs.
package activity

import (
	"context"
	"time"
)

// Dismissal marks that a task's activity entry has been cleared by a user.
// Cleared automatically whenever the task's status changes (spec §3, §8
// invariant 5).
type Dismissal struct {
	TaskID      string    `json:"task_id" db:"task_id"`
	DismissedAt time.Time `json:"dismissed_at" db:"dismissed_at"`
}

// EventKind discriminates an activity feed row's source.
type EventKind string

const (
	EventTaskStatusChanged EventKind = "task_status_changed"
	EventAttemptCreated    EventKind = "attempt_created"
	EventExecutionFinished EventKind = "execution_finished"
)

// Event is one row in the activity feed.
type Event struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	Kind      EventKind `json:"kind" db:"kind"`
	Summary   string    `json:"summary" db:"summary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ProjectCounts is the per-status task count used by the dashboard summary.
type ProjectCounts struct {
	ProjectID string         `json:"project_id"`
	ByStatus  map[string]int `json:"by_status"`
}

// Store is the persistence port for the activity/dashboard views. Unlike
// the task/project stores, this is read-mostly: Dismiss, Clear and
// RecordEvent are the only writes. No HTTP route serves Feed or Dashboard.
type Store interface {
	Dismiss(ctx context.Context, taskID string) error
	// Clear removes a task's dismissal; called automatically by
	// task.Store.UpdateStatus.
	Clear(ctx context.Context, taskID string) error
	IsDismissed(ctx context.Context, taskID string) (bool, error)

	RecordEvent(ctx context.Context, e Event) error
	Feed(ctx context.Context, limit int) ([]Event, error)

	Dashboard(ctx context.Context) ([]ProjectCounts, error)
}
