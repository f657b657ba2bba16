package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/activity"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// TaskStore is the sqlite/sqlx-backed implementation of task.Store. Every
// write goes through the pool's retry wrapper (spec §4.A) since SQLite
// single-writer contention is expected under concurrent attempts.
type TaskStore struct {
	pool       *Pool
	retryCfg   RetryConfig
	activities activity.Store
}

// NewTaskStore builds a TaskStore. activities may be nil if activity
// auto-clear-on-status-change (spec §3, §8 invariant 5) is not wired yet.
func NewTaskStore(pool *Pool, retryCfg RetryConfig, activities activity.Store) *TaskStore {
	return &TaskStore{pool: pool, retryCfg: retryCfg, activities: activities}
}

func (s *TaskStore) withRetry(ctx context.Context, fn RetryableFunc) error {
	return Retry(ctx, s.retryCfg, nil, fn)
}

func (s *TaskStore) Create(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO tasks (
				id, project_id, title, description, status, parent_task_id,
				shared_task_id, archived_at, activity_at, remote_version,
				remote_assignee_id, remote_assignee_name, remote_last_synced_at,
				remote_stream_node_id, remote_stream_updated_at, created_at, updated_at
			) VALUES (
				:id, :project_id, :title, :description, :status, :parent_task_id,
				:shared_task_id, :archived_at, :activity_at, :remote_version,
				:remote_assignee_id, :remote_assignee_name, :remote_last_synced_at,
				:remote_stream_node_id, :remote_stream_updated_at, :created_at, :updated_at
			)`, t)
		return err
	})
}

func (s *TaskStore) Get(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	err := s.pool.DB.GetContext(ctx, &t, `SELECT * FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("task " + id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TaskStore) UpdateStatus(ctx context.Context, id string, status task.Status) error {
	if _, err := task.ValidateStatus(string(status)); err != nil {
		return err
	}
	now := time.Now().UTC()
	err := s.withRetry(ctx, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ?, activity_at = ? WHERE id = ?`,
			status, now, now, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return vkerrors.NotFoundError("task " + id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.activities != nil {
		return s.activities.Clear(ctx, id)
	}
	return nil
}

func (s *TaskStore) Update(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()
	return s.withRetry(ctx, func(ctx context.Context) error {
		res, err := s.pool.DB.NamedExecContext(ctx, `
			UPDATE tasks SET
				title = :title, description = :description, status = :status,
				parent_task_id = :parent_task_id, shared_task_id = :shared_task_id,
				archived_at = :archived_at, activity_at = :activity_at,
				remote_version = :remote_version,
				remote_assignee_id = :remote_assignee_id,
				remote_assignee_name = :remote_assignee_name,
				remote_last_synced_at = :remote_last_synced_at,
				remote_stream_node_id = :remote_stream_node_id,
				remote_stream_updated_at = :remote_stream_updated_at,
				updated_at = :updated_at
			WHERE id = :id`, t)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "task "+t.ID)
	})
}

func (s *TaskStore) Archive(ctx context.Context, id string, archived bool) error {
	var archivedAt interface{}
	if archived {
		archivedAt = time.Now().UTC()
	}
	return s.withRetry(ctx, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE tasks SET archived_at = ?, updated_at = ? WHERE id = ?`,
			archivedAt, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "task "+id)
	})
}

// Delete nullifies children's parent_task_id (spec §3 invariant (d)) before
// removing the row; shared_task_id links are left untouched since they
// reference the hive's shared-task id, not a local row.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.DB.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET parent_task_id = NULL WHERE parent_task_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := rowsAffectedOrNotFound(res, "task "+id); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *TaskStore) ListByProject(ctx context.Context, projectID string, includeArchived bool) ([]*task.Task, error) {
	query := `SELECT * FROM tasks WHERE project_id = ?`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`
	var tasks []*task.Task
	if err := s.pool.DB.SelectContext(ctx, &tasks, query, projectID); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskStore) ListAll(ctx context.Context) ([]*task.Task, error) {
	var tasks []*task.Task
	if err := s.pool.DB.SelectContext(ctx, &tasks, `SELECT * FROM tasks ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateRemoteAssignee is a compare-and-swap on remote_version: the UPDATE's
// WHERE clause only matches the row still at expectedVersion, so a
// concurrent reassignment between the caller's read and this write surfaces
// as zero rows affected rather than silently clobbering it.
func (s *TaskStore) UpdateRemoteAssignee(ctx context.Context, id string, assigneeID, assigneeName string, expectedVersion int64) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE tasks SET remote_assignee_id = ?, remote_assignee_name = ?,
				remote_version = remote_version + 1, updated_at = ?
			 WHERE id = ? AND remote_version = ?`,
			assigneeID, assigneeName, time.Now().UTC(), id, expectedVersion)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return getErr
			}
			return vkerrors.ConflictError("task " + id + " remote_version changed concurrently")
		}
		return nil
	})
}

// rowsAffectedOrNotFound converts a zero-rows-affected UPDATE/DELETE result
// into a NotFoundError, matching spec §7's 404 mapping for missing entities.
func rowsAffectedOrNotFound(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return vkerrors.NotFoundError(what)
	}
	return nil
}

var _ task.Store = (*TaskStore)(nil)
