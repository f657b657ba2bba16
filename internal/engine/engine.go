// Package engine implements the execution engine (spec §4.I): the
// scheduler that drives a Task attempt's executor-action chain end to
// end, owning the Task-status state machine, worktree allocation,
// process supervision, message-store plumbing and cancellation.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/async"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/activity"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
	"github.com/davidrudduck/vk-swarm-sub003/internal/logbatcher"
	"github.com/davidrudduck/vk-swarm-sub003/internal/messagestore"
	"github.com/davidrudduck/vk-swarm-sub003/internal/normalizer"
	"github.com/davidrudduck/vk-swarm-sub003/internal/supervisor"
	"github.com/davidrudduck/vk-swarm-sub003/internal/variables"
	"github.com/davidrudduck/vk-swarm-sub003/internal/worktree"
)

// DefaultMessageStoreBytes bounds a single execution's message store
// (spec §4.D), passed to messagestore.Registry.GetOrCreate.
const DefaultMessageStoreBytes = 8 << 20 // 8 MiB

// runningExecution tracks the live goroutine state for one
// ExecutionProcess, mirroring the teacher's background-task-manager
// pattern of a map keyed by id guarded by a mutex
// (internal/domain/agent/react/background.go's BackgroundTaskManager),
// generalized from in-process subagent tasks to OS subprocess
// executions.
type runningExecution struct {
	attemptID  string
	taskID     string
	supHandle  *supervisor.Handle
	normHandle *normalizer.Handle
	cancel     context.CancelFunc
}

// Engine drives task attempts through the executor-action chain defined
// in spec §4.I.2, coordinating the worktree manager, process supervisor,
// message store, log batcher, approval service and variable expander.
type Engine struct {
	tasks      task.Store
	attempts   task.AttemptStore
	executions task.ExecutionStore
	activities activity.Store

	worktrees     *worktree.Manager
	messageStores *messagestore.Registry
	batcher       *logbatcher.Batcher
	adapter       Adapter
	variables     task.VariableStore

	logger *slog.Logger

	mu       sync.Mutex
	running  map[string]*runningExecution // execution id -> state
	worktreeOwners map[string]string       // claimed worktree paths (value is the path itself)
}

// New builds an Engine. adapter resolves coding-agent steps into runnable
// commands; pass ShellAdapter{} when no agent CLI is configured (script
// steps and tests). variables may be nil, which disables $NAME expansion
// (spec §4.K) and runs every step's script/prompt verbatim.
func New(
	tasks task.Store,
	attempts task.AttemptStore,
	executions task.ExecutionStore,
	activities activity.Store,
	worktrees *worktree.Manager,
	messageStores *messagestore.Registry,
	batcher *logbatcher.Batcher,
	adapter Adapter,
	variables task.VariableStore,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if adapter == nil {
		adapter = ShellAdapter{}
	}
	return &Engine{
		tasks:          tasks,
		attempts:       attempts,
		executions:     executions,
		activities:     activities,
		worktrees:      worktrees,
		messageStores:  messageStores,
		batcher:        batcher,
		adapter:        adapter,
		variables:      variables,
		logger:         logger,
		running:        map[string]*runningExecution{},
		worktreeOwners: map[string]string{},
	}
}

// SetInReview implements approvalsvc.TaskNotifier (spec §4.J / §4.I.1).
func (e *Engine) SetInReview(ctx context.Context, taskID string) error {
	return e.tasks.UpdateStatus(ctx, taskID, task.StatusInReview)
}

// SetInProgress implements approvalsvc.TaskNotifier.
func (e *Engine) SetInProgress(ctx context.Context, taskID string) error {
	return e.tasks.UpdateStatus(ctx, taskID, task.StatusInProgress)
}

// StartAttempt creates a TaskAttempt for t, allocates its worktree
// (honoring use_parent_worktree, spec §4.I.5), persists the first
// ExecutionProcess for the given chain head, and drives the chain to
// completion on a background goroutine. It returns as soon as the
// attempt and its first execution are durably recorded.
func (e *Engine) StartAttempt(ctx context.Context, t *task.Task, params task.CreateAndStartParams, projectRepoDir string, head task.ExecutorAction) (*task.TaskAttempt, error) {
	var worktreePath, branch string
	var err error

	if params.UseParentWorktree {
		worktreePath, branch, err = e.reuseParentWorktree(ctx, t)
		if err != nil {
			return nil, err
		}
	} else {
		worktreePath, branch, err = e.worktrees.Create(ctx, projectRepoDir, t.ProjectID, t.ID, params.BaseBranch)
		if err != nil {
			return nil, err
		}
	}

	if err := e.claimWorktree(worktreePath); err != nil {
		return nil, err
	}

	attempt := &task.TaskAttempt{
		TaskID:            t.ID,
		Executor:          params.ExecutorProfileID,
		Branch:            branch,
		BaseBranch:        params.BaseBranch,
		WorktreePath:      worktreePath,
		UseParentWorktree: params.UseParentWorktree,
	}
	if err := e.attempts.Create(ctx, attempt); err != nil {
		e.releaseWorktree(worktreePath)
		return nil, err
	}

	execution := &task.ExecutionProcess{
		TaskAttemptID:  attempt.ID,
		RunReason:      task.RunReasonCodingAgent,
		ExecutorAction: head,
		Status:         task.ExecutionRunning,
		StartedAt:      timeNow(),
	}
	if err := e.executions.Create(ctx, execution); err != nil {
		e.releaseWorktree(worktreePath)
		return nil, err
	}

	async.Go(e.logger, "engine.runChain", func() {
		e.runChain(context.Background(), t.ID, attempt, execution)
	})

	return attempt, nil
}

// reuseParentWorktree validates and returns the parent task's latest
// attempt's worktree path/branch (spec §4.I.5): only valid when t has a
// parent and that parent's latest attempt has a live (non-empty)
// worktree path.
func (e *Engine) reuseParentWorktree(ctx context.Context, t *task.Task) (string, string, error) {
	if t.ParentTaskID == nil {
		return "", "", vkerrors.ValidationError("use_parent_worktree requires a parent task")
	}
	parentAttempt, err := e.attempts.LatestForTask(ctx, *t.ParentTaskID)
	if err != nil {
		return "", "", vkerrors.ValidationError("parent task has no attempt to reuse a worktree from")
	}
	if parentAttempt.WorktreePath == "" {
		return "", "", vkerrors.ValidationError("parent attempt has no live worktree")
	}
	return parentAttempt.WorktreePath, parentAttempt.Branch, nil
}

// claimWorktree enforces spec §5's "worktree paths are exclusive to one
// attempt at a time" by refusing a second concurrent claim on the same
// path. Parent-worktree reuse intentionally claims the same path as the
// parent's own attempt is released (the parent's chain has already
// finished by the time a child starts), so this only rejects a genuinely
// concurrent second live attempt.
func (e *Engine) claimWorktree(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.worktreeOwners[path]; busy {
		return vkerrors.ConflictError(fmt.Sprintf("worktree %q already has a live attempt", path))
	}
	e.worktreeOwners[path] = path
	return nil
}

func (e *Engine) releaseWorktree(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.worktreeOwners, path)
}

// runChain executes execution's ExecutorAction, and on success chains
// into NextAction as a newly-created ExecutionProcess, until the chain
// ends or a step fails (spec §4.I.2).
func (e *Engine) runChain(ctx context.Context, taskID string, attempt *task.TaskAttempt, execution *task.ExecutionProcess) {
	if err := e.tasks.UpdateStatus(ctx, taskID, task.StatusInProgress); err != nil {
		e.logger.Error("failed to mark task in-progress", "task_id", taskID, "error", err)
	}

	current := execution
	for current != nil {
		status, next, err := e.runStep(ctx, taskID, attempt, current)
		if err != nil {
			e.logger.Error("execution step failed to start", "execution_id", current.ID, "error", err)
			return
		}
		if status != task.ExecutionCompleted {
			// Non-success terminates the chain; the execution's own
			// status already reflects failed/killed.
			return
		}
		if next == nil {
			if err := e.tasks.UpdateStatus(ctx, taskID, task.StatusDone); err != nil {
				e.logger.Error("failed to mark task done", "task_id", taskID, "error", err)
			}
			if e.activities != nil {
				_ = e.activities.RecordEvent(ctx, activity.Event{
					ProjectID: "",
					TaskID:    taskID,
					Kind:      activity.EventExecutionFinished,
					Summary:   "attempt chain completed",
				})
			}
			e.releaseWorktree(attempt.WorktreePath)
			return
		}
		nextExecution := &task.ExecutionProcess{
			TaskAttemptID:  attempt.ID,
			RunReason:      runReasonFor(*next),
			ExecutorAction: *next,
			Status:         task.ExecutionRunning,
			StartedAt:      timeNow(),
		}
		if err := e.executions.Create(ctx, nextExecution); err != nil {
			e.logger.Error("failed to persist chained execution", "attempt_id", attempt.ID, "error", err)
			return
		}
		current = nextExecution
	}
}

func runReasonFor(action task.ExecutorAction) task.RunReason {
	switch action.Kind {
	case task.ActionScriptRequest:
		if action.Context == task.ScriptContextCleanup {
			return task.RunReasonCleanupScript
		}
		return task.RunReasonSetupScript
	case task.ActionDevServerRequest:
		return task.RunReasonDevServer
	default:
		return task.RunReasonCodingAgent
	}
}

// runStep spawns the OS process for execution's action, streams its
// stdout/stderr into the message store, awaits exit, drains
// normalization (the hard sync point, spec §4.F/§5), and records the
// final execution status. It returns the terminal status and, on
// success, the next queued action.
func (e *Engine) runStep(ctx context.Context, taskID string, attempt *task.TaskAttempt, execution *task.ExecutionProcess) (task.ExecutionStatus, *task.ExecutorAction, error) {
	store := e.messageStores.GetOrCreate(execution.ID, DefaultMessageStoreBytes)

	normHandle := normalizer.Run(store, normalizer.DefaultGap,
		func(patch []byte) {
			e.batcher.AddLog(execution.ID, task.LogEntry{
				ExecutionID: execution.ID,
				OutputType:  task.OutputNormalized,
				Content:     string(patch),
				Timestamp:   timeNow(),
			})
		},
		func(kind vkerrors.ExecutorKind, burst []string) {
			e.logger.Warn("executor error burst classified", "execution_id", execution.ID, "kind", kind)
		},
	)

	action := e.expandVariables(ctx, taskID, execution.ExecutorAction)

	cmd, err := e.adapter.BuildCommand(ctx, action, attempt.WorktreePath)
	if err != nil {
		normHandle.Join()
		_ = e.failExecution(ctx, execution.ID, err.Error())
		return task.ExecutionFailed, nil, nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		normHandle.Join()
		_ = e.failExecution(ctx, execution.ID, err.Error())
		return task.ExecutionFailed, nil, nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		normHandle.Join()
		_ = e.failExecution(ctx, execution.ID, err.Error())
		return task.ExecutionFailed, nil, nil
	}

	supHandle, err := supervisor.Start(cmd)
	if err != nil {
		normHandle.Join()
		_ = e.failExecution(ctx, execution.ID, err.Error())
		return task.ExecutionFailed, nil, nil
	}
	if err := e.executions.SetPID(ctx, execution.ID, supHandle.PID()); err != nil {
		e.logger.Warn("failed to persist pid", "execution_id", execution.ID, "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.running[execution.ID] = &runningExecution{
		attemptID:  attempt.ID,
		taskID:     taskID,
		supHandle:  supHandle,
		normHandle: normHandle,
		cancel:     cancel,
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, execution.ID)
		e.mu.Unlock()
	}()

	var pump sync.WaitGroup
	pump.Add(2)
	go pumpStream(&pump, store, messagestore.EventStdout, stdout)
	go pumpStream(&pump, store, messagestore.EventStderr, stderr)

	waitErr := supHandle.Wait(runCtx)
	pump.Wait()
	store.Append(messagestore.Event{Kind: messagestore.EventFinished})
	normHandle.Join()

	// A cancelled runCtx means CancelExecution is driving this execution's
	// finalization (stop signal -> escalation -> killed status -> batcher
	// FinishSync) concurrently; this goroutine must not race it with its
	// own status write or Finish call, only stop advancing the chain.
	if runCtx.Err() != nil {
		return task.ExecutionKilled, nil, nil
	}

	e.batcher.Finish(execution.ID)

	if waitErr != nil {
		_ = e.failExecution(ctx, execution.ID, waitErr.Error())
		return task.ExecutionFailed, nil, nil
	}

	exitCode := exitCodeOf(waitErr)
	if err := e.executions.SetStatus(ctx, execution.ID, task.ExecutionCompleted, &exitCode, nil, nil); err != nil {
		return task.ExecutionFailed, nil, err
	}

	return task.ExecutionCompleted, execution.ExecutorAction.NextAction, nil
}

func (e *Engine) failExecution(ctx context.Context, executionID, message string) error {
	reason := "failed"
	return e.executions.SetStatus(ctx, executionID, task.ExecutionFailed, nil, &reason, &message)
}

// expandVariables substitutes $NAME tokens (spec §4.K) in the step's
// script or prompt text against taskID's nearest-ancestor-wins variable
// table, returning action unchanged if no variable store is wired or the
// step carries no expandable text. Undefined references are left as-is;
// the normalizer's error classification, not the expander, is where a
// resulting command failure would surface to the operator.
func (e *Engine) expandVariables(ctx context.Context, taskID string, action task.ExecutorAction) task.ExecutorAction {
	if e.variables == nil {
		return action
	}
	table, err := variables.Resolve(ctx, e.variables, taskID)
	if err != nil {
		e.logger.Warn("variable resolution failed, running step unexpanded", "task_id", taskID, "error", err)
		return action
	}
	switch action.Kind {
	case task.ActionScriptRequest:
		action.Script = variables.Expand(action.Script, table).Text
	case task.ActionCodingAgentInitialRequest, task.ActionCodingAgentFollowUp:
		action.Prompt = variables.Expand(action.Prompt, table).Text
	}
	return action
}

func pumpStream(wg *sync.WaitGroup, store *messagestore.Store, kind messagestore.EventKind, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		store.Append(messagestore.Event{Kind: kind, Payload: scanner.Text()})
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

var timeNow = func() time.Time { return time.Now() }
