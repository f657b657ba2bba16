package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// AttemptStore is the sqlite-backed implementation of task.AttemptStore.
type AttemptStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewAttemptStore(pool *Pool, retryCfg RetryConfig) *AttemptStore {
	return &AttemptStore{pool: pool, retryCfg: retryCfg}
}

func (s *AttemptStore) Create(ctx context.Context, a *task.TaskAttempt) error {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO task_attempts (
				id, task_id, executor, branch, base_branch, worktree_path,
				use_parent_worktree, hive_synced_at, created_at, updated_at
			) VALUES (
				:id, :task_id, :executor, :branch, :base_branch, :worktree_path,
				:use_parent_worktree, :hive_synced_at, :created_at, :updated_at
			)`, a)
		return err
	})
}

// UpsertSynced idempotently writes attempts pushed by a node's sync
// publisher (spec §4.L): a retried push after a dropped confirmation
// must not fail on the second attempt, so this is ON CONFLICT DO
// UPDATE rather than the plain INSERT Create uses for local rows.
func (s *AttemptStore) UpsertSynced(ctx context.Context, items []*task.TaskAttempt) error {
	if len(items) == 0 {
		return nil
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		tx, err := s.pool.DB.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, a := range items {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO task_attempts (
					id, task_id, executor, branch, base_branch, worktree_path,
					use_parent_worktree, hive_synced_at, created_at, updated_at
				) VALUES (
					:id, :task_id, :executor, :branch, :base_branch, :worktree_path,
					:use_parent_worktree, :hive_synced_at, :created_at, :updated_at
				)
				ON CONFLICT(id) DO UPDATE SET
					executor = excluded.executor, branch = excluded.branch,
					base_branch = excluded.base_branch, worktree_path = excluded.worktree_path,
					use_parent_worktree = excluded.use_parent_worktree,
					updated_at = excluded.updated_at`, a); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *AttemptStore) Get(ctx context.Context, id string) (*task.TaskAttempt, error) {
	var a task.TaskAttempt
	err := s.pool.DB.GetContext(ctx, &a, `SELECT * FROM task_attempts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("task attempt " + id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AttemptStore) ListByTask(ctx context.Context, taskID string) ([]*task.TaskAttempt, error) {
	var attempts []*task.TaskAttempt
	err := s.pool.DB.SelectContext(ctx, &attempts,
		`SELECT * FROM task_attempts WHERE task_id = ? ORDER BY created_at DESC`, taskID)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (s *AttemptStore) LatestForTask(ctx context.Context, taskID string) (*task.TaskAttempt, error) {
	var a task.TaskAttempt
	err := s.pool.DB.GetContext(ctx, &a,
		`SELECT * FROM task_attempts WHERE task_id = ? ORDER BY created_at DESC LIMIT 1`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("task attempt for task " + taskID)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AttemptStore) MarkHiveSynced(ctx context.Context, id string, at time.Time) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE task_attempts SET hive_synced_at = ? WHERE id = ?`, at, id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "task attempt "+id)
	})
}

func (s *AttemptStore) FindUnsynced(ctx context.Context, limit int) ([]*task.TaskAttempt, error) {
	var attempts []*task.TaskAttempt
	err := s.pool.DB.SelectContext(ctx, &attempts,
		`SELECT * FROM task_attempts WHERE hive_synced_at IS NULL ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

var _ task.AttemptStore = (*AttemptStore)(nil)

// executionRow shadows task.ExecutionProcess for scanning, since
// ExecutorAction is stored as a JSON TEXT column rather than scanned
// directly (spec §9: explicit discriminator, serialized as one blob per
// spec §4.B's "executor_action stored as an opaque JSON document").
type executionRow struct {
	ID                string          `db:"id"`
	TaskAttemptID     string          `db:"task_attempt_id"`
	RunReason         task.RunReason  `db:"run_reason"`
	ExecutorActionRaw string          `db:"executor_action"`
	Status            task.ExecutionStatus `db:"status"`
	ExitCode          *int            `db:"exit_code"`
	Dropped           bool            `db:"dropped"`
	PID               *int            `db:"pid"`
	BeforeHeadCommit  *string         `db:"before_head_commit"`
	AfterHeadCommit   *string         `db:"after_head_commit"`
	StartedAt         time.Time       `db:"started_at"`
	CompletedAt       *time.Time      `db:"completed_at"`
	CompletionReason  *string         `db:"completion_reason"`
	CompletionMessage *string         `db:"completion_message"`
	HiveSyncedAt      *time.Time      `db:"hive_synced_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r *executionRow) toDomain() (*task.ExecutionProcess, error) {
	var action task.ExecutorAction
	if err := json.Unmarshal([]byte(r.ExecutorActionRaw), &action); err != nil {
		return nil, err
	}
	return &task.ExecutionProcess{
		ID: r.ID, TaskAttemptID: r.TaskAttemptID, RunReason: r.RunReason,
		ExecutorAction: action, Status: r.Status, ExitCode: r.ExitCode,
		Dropped: r.Dropped, PID: r.PID,
		BeforeHeadCommit: r.BeforeHeadCommit, AfterHeadCommit: r.AfterHeadCommit,
		StartedAt: r.StartedAt, CompletedAt: r.CompletedAt,
		CompletionReason: r.CompletionReason, CompletionMessage: r.CompletionMessage,
		HiveSyncedAt: r.HiveSyncedAt, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}

func fromDomainExecution(e *task.ExecutionProcess) (executionRow, error) {
	raw, err := json.Marshal(e.ExecutorAction)
	if err != nil {
		return executionRow{}, err
	}
	return executionRow{
		ID: e.ID, TaskAttemptID: e.TaskAttemptID, RunReason: e.RunReason,
		ExecutorActionRaw: string(raw), Status: e.Status, ExitCode: e.ExitCode,
		Dropped: e.Dropped, PID: e.PID,
		BeforeHeadCommit: e.BeforeHeadCommit, AfterHeadCommit: e.AfterHeadCommit,
		StartedAt: e.StartedAt, CompletedAt: e.CompletedAt,
		CompletionReason: e.CompletionReason, CompletionMessage: e.CompletionMessage,
		HiveSyncedAt: e.HiveSyncedAt, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}, nil
}

// ExecutionStore is the sqlite-backed implementation of task.ExecutionStore.
type ExecutionStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewExecutionStore(pool *Pool, retryCfg RetryConfig) *ExecutionStore {
	return &ExecutionStore{pool: pool, retryCfg: retryCfg}
}

func (s *ExecutionStore) Create(ctx context.Context, e *task.ExecutionProcess) error {
	now := time.Now().UTC()
	if e.StartedAt.IsZero() {
		e.StartedAt = now
	}
	e.CreatedAt, e.UpdatedAt = now, now
	row, err := fromDomainExecution(e)
	if err != nil {
		return err
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.NamedExecContext(ctx, `
			INSERT INTO execution_processes (
				id, task_attempt_id, run_reason, executor_action, status,
				exit_code, dropped, pid, before_head_commit, after_head_commit,
				started_at, completed_at, completion_reason, completion_message,
				hive_synced_at, created_at, updated_at
			) VALUES (
				:id, :task_attempt_id, :run_reason, :executor_action, :status,
				:exit_code, :dropped, :pid, :before_head_commit, :after_head_commit,
				:started_at, :completed_at, :completion_reason, :completion_message,
				:hive_synced_at, :created_at, :updated_at
			)`, namedExecutionRow(row))
		return err
	})
}

// namedExecutionRow flattens executionRow into a map for NamedExec binding,
// since sql.NullString-free pointer fields bind more predictably as a map
// than through sqlx's reflection-based struct binder here.
func namedExecutionRow(r executionRow) map[string]interface{} {
	return map[string]interface{}{
		"id": r.ID, "task_attempt_id": r.TaskAttemptID, "run_reason": r.RunReason,
		"executor_action": r.ExecutorActionRaw, "status": r.Status,
		"exit_code": r.ExitCode, "dropped": r.Dropped, "pid": r.PID,
		"before_head_commit": r.BeforeHeadCommit, "after_head_commit": r.AfterHeadCommit,
		"started_at": r.StartedAt, "completed_at": r.CompletedAt,
		"completion_reason": r.CompletionReason, "completion_message": r.CompletionMessage,
		"hive_synced_at": r.HiveSyncedAt, "created_at": r.CreatedAt, "updated_at": r.UpdatedAt,
	}
}

// UpsertSynced mirrors AttemptStore.UpsertSynced for execution
// processes pushed by a node's sync publisher.
func (s *ExecutionStore) UpsertSynced(ctx context.Context, items []*task.ExecutionProcess) error {
	if len(items) == 0 {
		return nil
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		tx, err := s.pool.DB.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, e := range items {
			row, err := fromDomainExecution(e)
			if err != nil {
				return err
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO execution_processes (
					id, task_attempt_id, run_reason, executor_action, status,
					exit_code, dropped, pid, before_head_commit, after_head_commit,
					started_at, completed_at, completion_reason, completion_message,
					hive_synced_at, created_at, updated_at
				) VALUES (
					:id, :task_attempt_id, :run_reason, :executor_action, :status,
					:exit_code, :dropped, :pid, :before_head_commit, :after_head_commit,
					:started_at, :completed_at, :completion_reason, :completion_message,
					:hive_synced_at, :created_at, :updated_at
				)
				ON CONFLICT(id) DO UPDATE SET
					status = excluded.status, exit_code = excluded.exit_code,
					dropped = excluded.dropped, pid = excluded.pid,
					after_head_commit = excluded.after_head_commit,
					completed_at = excluded.completed_at,
					completion_reason = excluded.completion_reason,
					completion_message = excluded.completion_message,
					updated_at = excluded.updated_at`, namedExecutionRow(row)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *ExecutionStore) Get(ctx context.Context, id string) (*task.ExecutionProcess, error) {
	var row executionRow
	err := s.pool.DB.GetContext(ctx, &row, `SELECT * FROM execution_processes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("execution process " + id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *ExecutionStore) ListByAttempt(ctx context.Context, attemptID string) ([]*task.ExecutionProcess, error) {
	var rows []executionRow
	err := s.pool.DB.SelectContext(ctx, &rows,
		`SELECT * FROM execution_processes WHERE task_attempt_id = ? ORDER BY created_at ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	out := make([]*task.ExecutionProcess, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *ExecutionStore) SetStatus(ctx context.Context, id string, status task.ExecutionStatus, exitCode *int, completionReason, completionMessage *string) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		var completedAt interface{}
		if status.IsTerminal() {
			completedAt = time.Now().UTC()
		}
		res, err := s.pool.DB.ExecContext(ctx, `
			UPDATE execution_processes SET
				status = ?, exit_code = ?, completion_reason = ?,
				completion_message = ?, completed_at = ?, updated_at = ?
			WHERE id = ?`,
			status, exitCode, completionReason, completionMessage, completedAt, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "execution process "+id)
	})
}

func (s *ExecutionStore) SetPID(ctx context.Context, id string, pid int) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE execution_processes SET pid = ?, updated_at = ? WHERE id = ?`, pid, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "execution process "+id)
	})
}

func (s *ExecutionStore) setDropped(ctx context.Context, attemptID, targetExecutionID string, inclusive bool) (int, error) {
	cmp := ">"
	if inclusive {
		cmp = ">="
	}
	var n int
	err := Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		var targetCreatedAt time.Time
		if err := s.pool.DB.GetContext(ctx, &targetCreatedAt,
			`SELECT created_at FROM execution_processes WHERE id = ?`, targetExecutionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return vkerrors.NotFoundError("execution process " + targetExecutionID)
			}
			return err
		}
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE execution_processes SET dropped = 1, updated_at = ?
			 WHERE task_attempt_id = ? AND dropped = 0 AND created_at `+cmp+` ?`,
			time.Now().UTC(), attemptID, targetCreatedAt)
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

// SetRestoreBoundary drops every execution strictly after target (spec
// §4.B). dropped is monotonic: a row already dropped stays dropped, so the
// WHERE clause excludes dropped=1 rows rather than re-setting them.
func (s *ExecutionStore) SetRestoreBoundary(ctx context.Context, attemptID, targetExecutionID string) (int, error) {
	return s.setDropped(ctx, attemptID, targetExecutionID, false)
}

func (s *ExecutionStore) DropAtAndAfter(ctx context.Context, attemptID, targetExecutionID string) (int, error) {
	return s.setDropped(ctx, attemptID, targetExecutionID, true)
}

func (s *ExecutionStore) MarkHiveSynced(ctx context.Context, id string, at time.Time) error {
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx,
			`UPDATE execution_processes SET hive_synced_at = ? WHERE id = ?`, at, id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "execution process "+id)
	})
}

// FindUnsynced joins against task_attempts so a child execution is never
// returned before its parent attempt has synced (spec §4.L's FK-safe
// draining order).
func (s *ExecutionStore) FindUnsynced(ctx context.Context, limit int) ([]*task.ExecutionProcess, error) {
	var rows []executionRow
	err := s.pool.DB.SelectContext(ctx, &rows, `
		SELECT ep.* FROM execution_processes ep
		JOIN task_attempts ta ON ta.id = ep.task_attempt_id
		WHERE ep.hive_synced_at IS NULL AND ta.hive_synced_at IS NOT NULL
		ORDER BY ep.created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*task.ExecutionProcess, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

var _ task.ExecutionStore = (*ExecutionStore)(nil)

// VariableStore is the sqlite-backed implementation of task.VariableStore.
type VariableStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewVariableStore(pool *Pool, retryCfg RetryConfig) *VariableStore {
	return &VariableStore{pool: pool, retryCfg: retryCfg}
}

func (s *VariableStore) Set(ctx context.Context, taskID, name, value string) error {
	if err := task.ValidateVariableName(name); err != nil {
		return err
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.ExecContext(ctx, `
			INSERT INTO task_variables (id, task_id, name, value) VALUES (lower(hex(randomblob(16))), ?, ?, ?)
			ON CONFLICT(task_id, name) DO UPDATE SET value = excluded.value`,
			taskID, name, value)
		return err
	})
}

func (s *VariableStore) ListForTask(ctx context.Context, taskID string) ([]task.TaskVariable, error) {
	var vars []task.TaskVariable
	err := s.pool.DB.SelectContext(ctx, &vars,
		`SELECT * FROM task_variables WHERE task_id = ? ORDER BY name ASC`, taskID)
	if err != nil {
		return nil, err
	}
	return vars, nil
}

// AncestorChain walks parent_task_id pointers, nearest first, for the
// variable expander's resolution order (spec §4.K).
func (s *VariableStore) AncestorChain(ctx context.Context, taskID string) ([]string, error) {
	chain := []string{taskID}
	current := taskID
	for {
		var parent sql.NullString
		err := s.pool.DB.GetContext(ctx, &parent, `SELECT parent_task_id FROM tasks WHERE id = ?`, current)
		if errors.Is(err, sql.ErrNoRows) || !parent.Valid {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent.String)
		current = parent.String
	}
	return chain, nil
}

var _ task.VariableStore = (*VariableStore)(nil)
