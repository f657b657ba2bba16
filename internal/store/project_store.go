package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/project"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// ProjectStore is the sqlite-backed implementation of project.Store.
type ProjectStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewProjectStore(pool *Pool, retryCfg RetryConfig) *ProjectStore {
	return &ProjectStore{pool: pool, retryCfg: retryCfg}
}

func (s *ProjectStore) Create(ctx context.Context, p *project.Project) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO projects (
				id, name, repo_path, setup_script, dev_script, cleanup_script,
				parallel_setup_script, github_enabled, github_owner, github_repo,
				github_open_issues, github_open_prs, github_last_synced_at,
				remote_project_id, created_at, updated_at
			) VALUES (
				:id, :name, :repo_path, :setup_script, :dev_script, :cleanup_script,
				:parallel_setup_script, :github_enabled, :github_owner, :github_repo,
				:github_open_issues, :github_open_prs, :github_last_synced_at,
				:remote_project_id, :created_at, :updated_at
			)`, p)
		return err
	})
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*project.Project, error) {
	var p project.Project
	err := s.pool.DB.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("project " + id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProjectStore) Update(ctx context.Context, p *project.Project) error {
	p.UpdatedAt = time.Now().UTC()
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.NamedExecContext(ctx, `
			UPDATE projects SET
				name = :name, repo_path = :repo_path, setup_script = :setup_script,
				dev_script = :dev_script, cleanup_script = :cleanup_script,
				parallel_setup_script = :parallel_setup_script,
				github_enabled = :github_enabled, github_owner = :github_owner,
				github_repo = :github_repo, github_open_issues = :github_open_issues,
				github_open_prs = :github_open_prs,
				github_last_synced_at = :github_last_synced_at,
				remote_project_id = :remote_project_id, updated_at = :updated_at
			WHERE id = :id`, p)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "project "+p.ID)
	})
}

func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "project "+id)
	})
}

func (s *ProjectStore) List(ctx context.Context) ([]*project.Project, error) {
	var projects []*project.Project
	if err := s.pool.DB.SelectContext(ctx, &projects, `SELECT * FROM projects ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *ProjectStore) SetGitHubSettings(ctx context.Context, id string, settings project.GitHubSettings) error {
	owner, repo := "", ""
	if settings.Owner != nil {
		owner = *settings.Owner
	}
	if settings.Repo != nil {
		repo = *settings.Repo
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE projects SET github_enabled = ?, github_owner = ?, github_repo = ?, updated_at = ? WHERE id = ?`,
			settings.Enabled, owner, repo, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "project "+id)
	})
}

func (s *ProjectStore) UpdateGitHubSyncStats(ctx context.Context, id string, openIssues, openPRs int, syncedAt time.Time) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE projects SET github_open_issues = ?, github_open_prs = ?, github_last_synced_at = ?, updated_at = ? WHERE id = ?`,
			openIssues, openPRs, syncedAt, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "project "+id)
	})
}

var _ project.Store = (*ProjectStore)(nil)
