// Package project defines the Project entity: a git repository on disk
// with optional scripts and an optional GitHub remote link.
package project

import (
	"context"
	"time"
)

// Project is a git repository tracked by the orchestrator.
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RepoPath string `json:"repo_path"`

	SetupScript          string `json:"setup_script,omitempty"`
	DevScript            string `json:"dev_script,omitempty"`
	CleanupScript        string `json:"cleanup_script,omitempty"`
	ParallelSetupScript  bool   `json:"parallel_setup_script"`

	GitHubEnabled      bool       `json:"github_enabled"`
	GitHubOwner        string     `json:"github_owner,omitempty"`
	GitHubRepo         string     `json:"github_repo,omitempty"`
	GitHubOpenIssues   int        `json:"github_open_issues"`
	GitHubOpenPRs      int        `json:"github_open_prs"`
	GitHubLastSyncedAt *time.Time `json:"github_last_synced_at,omitempty"`

	RemoteProjectID *string `json:"remote_project_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GitHubSettings is the payload for POST /projects/{id}/github.
type GitHubSettings struct {
	Enabled bool    `json:"enabled"`
	Owner   *string `json:"owner,omitempty"`
	Repo    *string `json:"repo,omitempty"`
}

// Store is the persistence port for projects.
type Store interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	Update(ctx context.Context, p *Project) error
	// Delete removes a project. Cascades to its tasks (and, through those,
	// attempts/executions/logs); does not cascade task-to-task parent links.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Project, error)
	SetGitHubSettings(ctx context.Context, id string, settings GitHubSettings) error
	// UpdateGitHubSyncStats records the outcome of a background GitHub sync
	// triggered by enabling github_enabled (spec §6: "enabling triggers an
	// immediate background sync").
	UpdateGitHubSyncStats(ctx context.Context, id string, openIssues, openPRs int, syncedAt time.Time) error
}
