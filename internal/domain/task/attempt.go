package task

import (
	"context"
	"time"
)

// TaskAttempt is a concrete attempt to complete a Task in its own git
// worktree.
type TaskAttempt struct {
	ID         string `json:"id" db:"id"`
	TaskID     string `json:"task_id" db:"task_id"`
	Executor   string `json:"executor" db:"executor"`
	Branch     string `json:"branch" db:"branch"`
	BaseBranch string `json:"base_branch" db:"base_branch"`

	WorktreePath string `json:"worktree_path" db:"worktree_path"`

	UseParentWorktree bool `json:"use_parent_worktree" db:"use_parent_worktree"`

	HiveSyncedAt *time.Time `json:"hive_synced_at,omitempty" db:"hive_synced_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AttemptStore is the persistence port for task attempts.
type AttemptStore interface {
	Create(ctx context.Context, a *TaskAttempt) error
	Get(ctx context.Context, id string) (*TaskAttempt, error)
	ListByTask(ctx context.Context, taskID string) ([]*TaskAttempt, error)
	// LatestForTask returns the most recently created attempt for a task, or
	// ErrNotFound if the task has none — used by parent-worktree reuse
	// (spec §4.I.5).
	LatestForTask(ctx context.Context, taskID string) (*TaskAttempt, error)
	MarkHiveSynced(ctx context.Context, id string, at time.Time) error
	FindUnsynced(ctx context.Context, limit int) ([]*TaskAttempt, error)
}

// RunReason is the purpose of an ExecutionProcess run.
type RunReason string

const (
	RunReasonSetupScript   RunReason = "setupscript"
	RunReasonCleanupScript RunReason = "cleanupscript"
	RunReasonCodingAgent   RunReason = "codingagent"
	RunReasonDevServer     RunReason = "devserver"
)

// ExecutionStatus is the lifecycle state of an ExecutionProcess.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionKilled    ExecutionStatus = "killed"
)

// IsTerminal reports whether status is a final state.
func (s ExecutionStatus) IsTerminal() bool {
	return s != ExecutionRunning
}

// ExecutionProcess is a single process run within a TaskAttempt.
type ExecutionProcess struct {
	ID            string          `json:"id" db:"id"`
	TaskAttemptID string          `json:"task_attempt_id" db:"task_attempt_id"`
	RunReason     RunReason       `json:"run_reason" db:"run_reason"`
	ExecutorAction ExecutorAction `json:"executor_action" db:"executor_action"`
	Status        ExecutionStatus `json:"status" db:"status"`
	ExitCode      *int            `json:"exit_code,omitempty" db:"exit_code"`

	// Dropped is set by a restore boundary (spec §4.B set_restore_boundary)
	// and is monotonic: once true, only an explicit restore boundary call
	// may change it, and it may never be un-set back to false.
	Dropped bool `json:"dropped" db:"dropped"`

	PID *int `json:"pid,omitempty" db:"pid"`

	BeforeHeadCommit *string `json:"before_head_commit,omitempty" db:"before_head_commit"`
	AfterHeadCommit  *string `json:"after_head_commit,omitempty" db:"after_head_commit"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	CompletionReason  *string `json:"completion_reason,omitempty" db:"completion_reason"`
	CompletionMessage *string `json:"completion_message,omitempty" db:"completion_message"`

	HiveSyncedAt *time.Time `json:"hive_synced_at,omitempty" db:"hive_synced_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ExecutionStore is the persistence port for execution processes.
type ExecutionStore interface {
	Create(ctx context.Context, e *ExecutionProcess) error
	Get(ctx context.Context, id string) (*ExecutionProcess, error)
	ListByAttempt(ctx context.Context, attemptID string) ([]*ExecutionProcess, error)
	SetStatus(ctx context.Context, id string, status ExecutionStatus, exitCode *int, completionReason, completionMessage *string) error
	SetPID(ctx context.Context, id string, pid int) error

	// SetRestoreBoundary marks all executions in the attempt whose
	// created_at > target's created_at as dropped=true; never un-drops
	// (spec §4.B). Returns the number of rows newly dropped (0 if the
	// boundary was already applied).
	SetRestoreBoundary(ctx context.Context, attemptID, targetExecutionID string) (int, error)
	// DropAtAndAfter is the inclusive variant of SetRestoreBoundary.
	DropAtAndAfter(ctx context.Context, attemptID, targetExecutionID string) (int, error)

	MarkHiveSynced(ctx context.Context, id string, at time.Time) error
	// FindUnsynced returns executions with hive_synced_at IS NULL whose
	// parent attempt is already synced, ordered oldest-first (spec §4.B,
	// §4.L FK-safe draining).
	FindUnsynced(ctx context.Context, limit int) ([]*ExecutionProcess, error)
}

// ScriptLanguage is the interpreter for a ScriptRequest step.
type ScriptLanguage string

const (
	ScriptBash ScriptLanguage = "bash"
	ScriptPwsh ScriptLanguage = "pwsh"
)

// ScriptContext distinguishes setup from cleanup scripts.
type ScriptContext string

const (
	ScriptContextSetup   ScriptContext = "setup"
	ScriptContextCleanup ScriptContext = "cleanup"
)

// ActionKind discriminates the ExecutorAction sum type. Spec §9 requires an
// explicit discriminator field rather than structural typing for sum types
// on the wire.
type ActionKind string

const (
	ActionScriptRequest            ActionKind = "script_request"
	ActionCodingAgentInitialRequest ActionKind = "coding_agent_initial_request"
	ActionCodingAgentFollowUp      ActionKind = "coding_agent_follow_up"
	ActionDevServerRequest         ActionKind = "dev_server_request"
)

// ExecutorAction is one step of the linked-list "program" an attempt runs
// (spec §4.I.2). NextAction, when non-nil, is the step run after this one
// succeeds; a failure terminates the chain regardless of NextAction.
type ExecutorAction struct {
	Kind ActionKind `json:"kind"`

	// ScriptRequest fields.
	Language ScriptLanguage `json:"language,omitempty"`
	Script   string         `json:"script,omitempty"`
	Context  ScriptContext  `json:"context,omitempty"`

	// CodingAgentInitialRequest / CodingAgentFollowUp fields.
	Prompt            string `json:"prompt,omitempty"`
	ExecutorProfileID string `json:"executor_profile_id,omitempty"`
	SessionID         string `json:"session_id,omitempty"`

	// DevServerRequest fields.
	DevServerCommand string `json:"dev_server_command,omitempty"`

	NextAction *ExecutorAction `json:"next_action,omitempty"`
}

// ExecutorSession records the agent's session id so follow-ups can resume
// context (spec §4.I.3).
type ExecutorSession struct {
	ExecutionProcessID string `json:"execution_process_id" db:"execution_process_id"`
	SessionID           string `json:"session_id" db:"session_id"`
}

// LogEntry is a single row-oriented output line from an ExecutionProcess.
type LogEntry struct {
	ID           int64      `json:"id" db:"id"`
	ExecutionID  string     `json:"execution_id" db:"execution_id"`
	OutputType   OutputType `json:"output_type" db:"output_type"`
	Content      string     `json:"content" db:"content"`
	Timestamp    time.Time  `json:"timestamp" db:"timestamp"`
	HiveSyncedAt *time.Time `json:"hive_synced_at,omitempty" db:"hive_synced_at"`
}

// OutputType distinguishes the log entry's origin stream.
type OutputType string

const (
	OutputStdout     OutputType = "stdout"
	OutputStderr     OutputType = "stderr"
	OutputNormalized OutputType = "normalized"
)

// LogStore is the persistence port for log entries.
type LogStore interface {
	AppendBatch(ctx context.Context, entries []LogEntry) error
	ListByExecution(ctx context.Context, executionID string) ([]LogEntry, error)
	CountByExecution(ctx context.Context, executionID string) (int, error)
	MarkHiveSyncedBatch(ctx context.Context, ids []int64, at time.Time) (int, error)
	// FindUnsynced returns log entries whose parent execution is already
	// synced, ordered oldest-first.
	FindUnsynced(ctx context.Context, limit int) ([]LogEntry, error)
	// DeleteOlderThan batch-deletes rows older than the cutoff, 10,000 rows
	// per statement with a 10ms sleep between batches (spec §4.B, §4.M).
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// TaskVariable is a name/value bound to a Task, resolved through the parent
// chain with nearest-ancestor-wins (spec §3, §4.K).
type TaskVariable struct {
	ID     string `json:"id" db:"id"`
	TaskID string `json:"task_id" db:"task_id"`
	Name   string `json:"name" db:"name"`
	Value  string `json:"value" db:"value"`
}

// VariableStore is the persistence port for task variables.
type VariableStore interface {
	Set(ctx context.Context, taskID, name, value string) error
	ListForTask(ctx context.Context, taskID string) ([]TaskVariable, error)
	// AncestorChain returns taskID and all of its ancestors, nearest first,
	// for the variable expander's nearest-ancestor-wins walk.
	AncestorChain(ctx context.Context, taskID string) ([]string, error)
}
