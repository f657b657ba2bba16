package store

import (
	"context"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

// LogStore is the sqlite-backed implementation of task.LogStore.
type LogStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewLogStore(pool *Pool, retryCfg RetryConfig) *LogStore {
	return &LogStore{pool: pool, retryCfg: retryCfg}
}

// AppendBatch inserts entries in one transaction, matching the log
// batcher's BATCH_SIZE/FLUSH_INTERVAL_MS commit boundary (spec §4.E).
func (s *LogStore) AppendBatch(ctx context.Context, entries []task.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		tx, err := s.pool.DB.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PreparexContext(ctx,
			`INSERT INTO log_entries (execution_id, output_type, content, timestamp) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ExecutionID, e.OutputType, e.Content, e.Timestamp); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *LogStore) ListByExecution(ctx context.Context, executionID string) ([]task.LogEntry, error) {
	var entries []task.LogEntry
	err := s.pool.DB.SelectContext(ctx, &entries,
		`SELECT * FROM log_entries WHERE execution_id = ? ORDER BY id ASC`, executionID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *LogStore) CountByExecution(ctx context.Context, executionID string) (int, error) {
	var n int
	err := s.pool.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM log_entries WHERE execution_id = ?`, executionID)
	return n, err
}

func (s *LogStore) MarkHiveSyncedBatch(ctx context.Context, ids []int64, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		query, args, err := sqlxIn(`UPDATE log_entries SET hive_synced_at = ? WHERE id IN (?)`, at, ids)
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

// FindUnsynced joins against execution_processes so entries never sync
// before their parent execution (spec §4.L FK-safe draining).
func (s *LogStore) FindUnsynced(ctx context.Context, limit int) ([]task.LogEntry, error) {
	var entries []task.LogEntry
	err := s.pool.DB.SelectContext(ctx, &entries, `
		SELECT le.* FROM log_entries le
		JOIN execution_processes ep ON ep.id = le.execution_id
		WHERE le.hive_synced_at IS NULL AND ep.hive_synced_at IS NOT NULL
		ORDER BY le.id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteOlderThan batch-deletes in chunks of 10,000 rows with a 10ms sleep
// between batches, so a large purge never holds the writer lock long
// enough to starve concurrent attempts (spec §4.B, §4.M).
func (s *LogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const batchSize = 10000
	total := 0
	for {
		var affected int
		err := Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
			res, err := s.pool.DB.ExecContext(ctx,
				`DELETE FROM log_entries WHERE id IN (SELECT id FROM log_entries WHERE timestamp < ? LIMIT ?)`,
				cutoff, batchSize)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			affected = int(n)
			return nil
		})
		if err != nil {
			return total, err
		}
		total += affected
		if affected < batchSize {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

var _ task.LogStore = (*LogStore)(nil)
