package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// LabelStore is the sqlite-backed implementation of task.LabelStore.
type LabelStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewLabelStore(pool *Pool, retryCfg RetryConfig) *LabelStore {
	return &LabelStore{pool: pool, retryCfg: retryCfg}
}

func (s *LabelStore) Create(ctx context.Context, l *task.Label) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx,
			`INSERT INTO labels (id, project_id, name, color) VALUES (:id, :project_id, :name, :color)`, l)
		return err
	})
}

func (s *LabelStore) Get(ctx context.Context, id string) (*task.Label, error) {
	var l task.Label
	err := s.pool.DB.GetContext(ctx, &l, `SELECT * FROM labels WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("label " + id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *LabelStore) Update(ctx context.Context, l *task.Label) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.NamedExecContext(ctx,
			`UPDATE labels SET name = :name, color = :color WHERE id = :id`, l)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "label "+l.ID)
	})
}

func (s *LabelStore) Delete(ctx context.Context, id string) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx, `DELETE FROM labels WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "label "+id)
	})
}

func (s *LabelStore) List(ctx context.Context, projectID *string) ([]*task.Label, error) {
	var labels []*task.Label
	var err error
	if projectID == nil {
		err = s.pool.DB.SelectContext(ctx, &labels, `SELECT * FROM labels WHERE project_id IS NULL ORDER BY name ASC`)
	} else {
		err = s.pool.DB.SelectContext(ctx, &labels,
			`SELECT * FROM labels WHERE project_id = ? OR project_id IS NULL ORDER BY name ASC`, *projectID)
	}
	if err != nil {
		return nil, err
	}
	return labels, nil
}

func (s *LabelStore) AttachToTask(ctx context.Context, taskID, labelID string) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_labels (task_id, label_id) VALUES (?, ?)`, taskID, labelID)
		return err
	})
}

func (s *LabelStore) DetachFromTask(ctx context.Context, taskID, labelID string) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.ExecContext(ctx,
			`DELETE FROM task_labels WHERE task_id = ? AND label_id = ?`, taskID, labelID)
		return err
	})
}

func (s *LabelStore) ListForTask(ctx context.Context, taskID string) ([]*task.Label, error) {
	var labels []*task.Label
	err := s.pool.DB.SelectContext(ctx, &labels, `
		SELECT l.* FROM labels l
		JOIN task_labels tl ON tl.label_id = l.id
		WHERE tl.task_id = ? ORDER BY l.name ASC`, taskID)
	if err != nil {
		return nil, err
	}
	return labels, nil
}

var _ task.LabelStore = (*LabelStore)(nil)

// TemplateStore is the sqlite-backed implementation of task.TemplateStore.
type TemplateStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewTemplateStore(pool *Pool, retryCfg RetryConfig) *TemplateStore {
	return &TemplateStore{pool: pool, retryCfg: retryCfg}
}

func (s *TemplateStore) Create(ctx context.Context, t *task.Template) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO templates (id, name, title, description, created_at, updated_at)
			VALUES (:id, :name, :title, :description, :created_at, :updated_at)`, t)
		return err
	})
}

func (s *TemplateStore) Get(ctx context.Context, id string) (*task.Template, error) {
	var t task.Template
	err := s.pool.DB.GetContext(ctx, &t, `SELECT * FROM templates WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("template " + id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TemplateStore) Update(ctx context.Context, t *task.Template) error {
	t.UpdatedAt = time.Now().UTC()
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.NamedExecContext(ctx, `
			UPDATE templates SET name = :name, title = :title, description = :description,
			updated_at = :updated_at WHERE id = :id`, t)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "template "+t.ID)
	})
}

func (s *TemplateStore) Delete(ctx context.Context, id string) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "template "+id)
	})
}

func (s *TemplateStore) List(ctx context.Context) ([]*task.Template, error) {
	var templates []*task.Template
	if err := s.pool.DB.SelectContext(ctx, &templates, `SELECT * FROM templates ORDER BY name ASC`); err != nil {
		return nil, err
	}
	return templates, nil
}

var _ task.TemplateStore = (*TemplateStore)(nil)

// MergeStore is the sqlite-backed implementation of task.MergeStore.
type MergeStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewMergeStore(pool *Pool, retryCfg RetryConfig) *MergeStore {
	return &MergeStore{pool: pool, retryCfg: retryCfg}
}

func (s *MergeStore) Create(ctx context.Context, m *task.Merge) error {
	m.CreatedAt = time.Now().UTC()
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO merges (id, task_attempt_id, kind, pr_number, pr_url, commit_sha, created_at)
			VALUES (:id, :task_attempt_id, :kind, :pr_number, :pr_url, :commit_sha, :created_at)`, m)
		return err
	})
}

func (s *MergeStore) ListForAttempt(ctx context.Context, attemptID string) ([]*task.Merge, error) {
	var merges []*task.Merge
	err := s.pool.DB.SelectContext(ctx, &merges,
		`SELECT * FROM merges WHERE task_attempt_id = ? ORDER BY created_at DESC`, attemptID)
	if err != nil {
		return nil, err
	}
	return merges, nil
}

var _ task.MergeStore = (*MergeStore)(nil)
