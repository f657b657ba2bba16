package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/hive"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// HiveStore is the sqlite-backed implementation of hive.Store. It lives in
// the same package as the node-side entity stores because the hive binary
// (cmd/hive) links this package directly rather than talking to the node
// over the wire (spec §4.L: the hive is itself a vk-swarm process).
type HiveStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewHiveStore(pool *Pool, retryCfg RetryConfig) *HiveStore {
	return &HiveStore{pool: pool, retryCfg: retryCfg}
}

func (s *HiveStore) UpsertNode(ctx context.Context, n *hive.Node) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO hive_nodes (id, name, status, last_heartbeat_at, created_at)
			VALUES (:id, :name, :status, :last_heartbeat_at, :created_at)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, status = excluded.status`, n)
		return err
	})
}

func (s *HiveStore) GetNode(ctx context.Context, id string) (*hive.Node, error) {
	var n hive.Node
	err := s.pool.DB.GetContext(ctx, &n, `SELECT * FROM hive_nodes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("node " + id)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *HiveStore) RecordHeartbeat(ctx context.Context, nodeID string, at time.Time) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE hive_nodes SET last_heartbeat_at = ?, status = ? WHERE id = ?`, at, hive.NodeOnline, nodeID)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "node "+nodeID)
	})
}

// MarkStaleOffline is called by the heartbeat monitor (spec §4.M) on each
// tick; threshold is typically Sync.HeartbeatTimeout (default 60s).
func (s *HiveStore) MarkStaleOffline(ctx context.Context, threshold time.Duration, now time.Time) ([]string, error) {
	var ids []string
	cutoff := now.Add(-threshold)
	err := Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		ids = nil
		if err := s.pool.DB.SelectContext(ctx, &ids, `
			SELECT id FROM hive_nodes
			WHERE status = ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)`,
			hive.NodeOnline, cutoff); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		query, args, err := sqlxIn(`UPDATE hive_nodes SET status = ? WHERE id IN (?)`,
			hive.NodeOffline, ids)
		if err != nil {
			return err
		}
		_, err = s.pool.DB.ExecContext(ctx, query, args...)
		return err
	})
	return ids, err
}

func (s *HiveStore) CreateAssignment(ctx context.Context, a *hive.TaskAssignment) error {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO hive_task_assignments (
				id, task_id, node_project_id, local_project_id, node_id, status,
				task_details, created_at, updated_at
			) VALUES (
				:id, :task_id, :node_project_id, :local_project_id, :node_id, :status,
				:task_details, :created_at, :updated_at
			)`, a)
		return err
	})
}

func (s *HiveStore) GetAssignment(ctx context.Context, id string) (*hive.TaskAssignment, error) {
	var a hive.TaskAssignment
	err := s.pool.DB.GetContext(ctx, &a, `SELECT * FROM hive_task_assignments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("assignment " + id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *HiveStore) SetAssignmentStatus(ctx context.Context, id string, status hive.AssignmentStatus) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE hive_task_assignments SET status = ?, updated_at = ? WHERE id = ?`,
			status, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "assignment "+id)
	})
}

var terminalAssignmentStatuses = []hive.AssignmentStatus{hive.AssignmentCompleted, hive.AssignmentFailed}

func (s *HiveStore) FailActiveForNode(ctx context.Context, nodeID string) (int, error) {
	var n int
	err := Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		query, args, err := sqlxIn(`
			UPDATE hive_task_assignments SET status = ?, updated_at = ?
			WHERE node_id = ? AND status NOT IN (?)`,
			hive.AssignmentFailed, time.Now().UTC(), nodeID, terminalAssignmentStatuses)
		if err != nil {
			return err
		}
		res, err := s.pool.DB.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	})
	return n, err
}

func (s *HiveStore) CreateAPIKey(ctx context.Context, k *hive.NodeAPIKey) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO hive_node_api_keys (id, node_id, prefix, hash, created_at, revoked_at)
			VALUES (:id, :node_id, :prefix, :hash, :created_at, :revoked_at)`, k)
		return err
	})
}

func (s *HiveStore) LookupByPrefix(ctx context.Context, prefix string) ([]*hive.NodeAPIKey, error) {
	var keys []*hive.NodeAPIKey
	err := s.pool.DB.SelectContext(ctx, &keys,
		`SELECT * FROM hive_node_api_keys WHERE prefix = ? AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *HiveStore) RevokeAPIKey(ctx context.Context, id string, at time.Time) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE hive_node_api_keys SET revoked_at = ? WHERE id = ?`, at, id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "api key "+id)
	})
}

// ReportProject upserts the (nodeID, localProjectID) pair's
// last_reported_at (spec §4.M stale-project cleanup).
func (s *HiveStore) ReportProject(ctx context.Context, nodeID, localProjectID string, at time.Time) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.ExecContext(ctx, `
			INSERT INTO hive_node_projects (node_id, local_project_id, last_reported_at)
			VALUES (?, ?, ?)
			ON CONFLICT(node_id, local_project_id) DO UPDATE SET last_reported_at = excluded.last_reported_at`,
			nodeID, localProjectID, at)
		return err
	})
}

// StaleProjectsForOnlineNodes returns local project ids whose most recent
// report, across all nodes that ever reported them and are currently
// online, predates cutoff. A project with no online reporter at all
// (every reporting node is offline) is excluded — offline nodes may
// reconnect and re-sync, per spec §4.M.
func (s *HiveStore) StaleProjectsForOnlineNodes(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		ids = nil
		return s.pool.DB.SelectContext(ctx, &ids, `
			SELECT hnp.local_project_id
			FROM hive_node_projects hnp
			JOIN hive_nodes hn ON hn.id = hnp.node_id
			WHERE hn.status = ?
			GROUP BY hnp.local_project_id
			HAVING MAX(hnp.last_reported_at) < ?`,
			hive.NodeOnline, cutoff)
	})
	return ids, err
}

// DeleteStaleProjects removes the node/project report rows for the given
// local project ids and returns the number of rows removed.
func (s *HiveStore) DeleteStaleProjects(ctx context.Context, localProjectIDs []string) (int, error) {
	if len(localProjectIDs) == 0 {
		return 0, nil
	}
	var n int
	err := Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		query, args, err := sqlxIn(`DELETE FROM hive_node_projects WHERE local_project_id IN (?)`, localProjectIDs)
		if err != nil {
			return err
		}
		res, err := s.pool.DB.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	})
	return n, err
}

var _ hive.Store = (*HiveStore)(nil)
