package task

import (
	"context"
	"time"
)

// Label is a per-project or global tag attachable to tasks.
type Label struct {
	ID        string  `json:"id" db:"id"`
	ProjectID *string `json:"project_id,omitempty" db:"project_id"` // nil => global
	Name      string  `json:"name" db:"name"`
	Color     string  `json:"color,omitempty" db:"color"`
}

// LabelStore is the persistence port for labels.
type LabelStore interface {
	Create(ctx context.Context, l *Label) error
	Get(ctx context.Context, id string) (*Label, error)
	Update(ctx context.Context, l *Label) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, projectID *string) ([]*Label, error)
	AttachToTask(ctx context.Context, taskID, labelID string) error
	DetachFromTask(ctx context.Context, taskID, labelID string) error
	ListForTask(ctx context.Context, taskID string) ([]*Label, error)
}

// Template is an organization-wide reusable task definition.
type Template struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TemplateStore is the persistence port for templates.
type TemplateStore interface {
	Create(ctx context.Context, t *Template) error
	Get(ctx context.Context, id string) (*Template, error)
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Template, error)
}

// MergeKind distinguishes how an attempt's branch reached the base branch.
type MergeKind string

const (
	MergeDirect MergeKind = "direct"
	MergePR     MergeKind = "pull_request"
)

// Merge records a PR/direct-merge link to a TaskAttempt.
type Merge struct {
	ID            string    `json:"id" db:"id"`
	TaskAttemptID string    `json:"task_attempt_id" db:"task_attempt_id"`
	Kind          MergeKind `json:"kind" db:"kind"`
	PRNumber      *int      `json:"pr_number,omitempty" db:"pr_number"`
	PRURL         *string   `json:"pr_url,omitempty" db:"pr_url"`
	CommitSHA     *string   `json:"commit_sha,omitempty" db:"commit_sha"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// MergeStore is the persistence port for merges.
type MergeStore interface {
	Create(ctx context.Context, m *Merge) error
	ListForAttempt(ctx context.Context, attemptID string) ([]*Merge, error)
}
