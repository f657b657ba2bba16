package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/activity"
)

// ActivityStore is the sqlite-backed implementation of activity.Store.
type ActivityStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewActivityStore(pool *Pool, retryCfg RetryConfig) *ActivityStore {
	return &ActivityStore{pool: pool, retryCfg: retryCfg}
}

func (s *ActivityStore) Dismiss(ctx context.Context, taskID string) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.ExecContext(ctx, `
			INSERT INTO activity_dismissals (task_id, dismissed_at) VALUES (?, ?)
			ON CONFLICT(task_id) DO UPDATE SET dismissed_at = excluded.dismissed_at`,
			taskID, time.Now().UTC())
		return err
	})
}

func (s *ActivityStore) Clear(ctx context.Context, taskID string) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.ExecContext(ctx, `DELETE FROM activity_dismissals WHERE task_id = ?`, taskID)
		return err
	})
}

func (s *ActivityStore) IsDismissed(ctx context.Context, taskID string) (bool, error) {
	var n int
	err := s.pool.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM activity_dismissals WHERE task_id = ?`, taskID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *ActivityStore) RecordEvent(ctx context.Context, e activity.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO activity_events (id, project_id, task_id, kind, summary, created_at)
			VALUES (:id, :project_id, :task_id, :kind, :summary, :created_at)`, e)
		return err
	})
}

func (s *ActivityStore) Feed(ctx context.Context, limit int) ([]activity.Event, error) {
	var events []activity.Event
	err := s.pool.DB.SelectContext(ctx, &events,
		`SELECT * FROM activity_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Dashboard aggregates unarchived task counts per project/status.
func (s *ActivityStore) Dashboard(ctx context.Context) ([]activity.ProjectCounts, error) {
	rows, err := s.pool.DB.QueryContext(ctx, `
		SELECT project_id, status, COUNT(*) FROM tasks
		WHERE archived_at IS NULL GROUP BY project_id, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byProject := map[string]map[string]int{}
	order := []string{}
	for rows.Next() {
		var projectID, status string
		var count int
		if err := rows.Scan(&projectID, &status, &count); err != nil {
			return nil, err
		}
		if _, ok := byProject[projectID]; !ok {
			byProject[projectID] = map[string]int{}
			order = append(order, projectID)
		}
		byProject[projectID][status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]activity.ProjectCounts, 0, len(order))
	for _, projectID := range order {
		out = append(out, activity.ProjectCounts{ProjectID: projectID, ByStatus: byProject[projectID]})
	}
	return out, nil
}

var _ activity.Store = (*ActivityStore)(nil)
