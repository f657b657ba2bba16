package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// CancelExecution runs the cancellation sequence named in spec §4.I.4:
// cooperative stop signal, supervisor escalation, await the
// normalization join handle (the hard synchronization point), mark the
// execution killed, then flush the batcher synchronously before
// returning.
func (e *Engine) CancelExecution(ctx context.Context, executionID string) error {
	e.mu.Lock()
	re, ok := e.running[executionID]
	e.mu.Unlock()
	if !ok {
		return vkerrors.NotFoundError(fmt.Sprintf("execution %q is not running", executionID))
	}

	// 1. cooperative stop signal
	re.cancel()

	// 2. supervisor escalation
	killCtx, killCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer killCancel()
	if err := re.supHandle.Kill(killCtx); err != nil {
		e.logFailedKill(executionID, err)
	}

	// 3. hard synchronization point: normalization MUST finish before the
	// execution is declared finalized, replacing any arbitrary sleep.
	re.normHandle.Join()

	// 4. mark killed
	completionReason := "killed"
	if err := e.executions.SetStatus(ctx, executionID, task.ExecutionKilled, nil, &completionReason, nil); err != nil {
		return err
	}

	// 5. batcher Finish, flush completes before this call returns
	e.batcher.FinishSync(executionID)

	return nil
}

func (e *Engine) logFailedKill(executionID string, err error) {
	if e.logger != nil {
		e.logger.Error("supervisor kill escalation failed", "execution_id", executionID, "error", err)
	}
}

// CancelAttempt cancels every still-running execution under attemptID.
// If this attempt has no completed, non-dropped execution, the task moves
// to cancelled; otherwise the task is left as-is. Other attempts of the
// same task are not consulted.
func (e *Engine) CancelAttempt(ctx context.Context, taskID, attemptID string) error {
	e.mu.Lock()
	var toCancel []string
	for execID, re := range e.running {
		if re.attemptID == attemptID {
			toCancel = append(toCancel, execID)
		}
	}
	e.mu.Unlock()

	for _, execID := range toCancel {
		if err := e.CancelExecution(ctx, execID); err != nil {
			return err
		}
	}

	hasSuccess, err := e.attemptHasSuccessfulExecution(ctx, attemptID)
	if err != nil {
		return err
	}
	if !hasSuccess {
		return e.tasks.UpdateStatus(ctx, taskID, task.StatusCancelled)
	}
	return nil
}

func (e *Engine) attemptHasSuccessfulExecution(ctx context.Context, attemptID string) (bool, error) {
	executions, err := e.executions.ListByAttempt(ctx, attemptID)
	if err != nil {
		return false, err
	}
	for _, ex := range executions {
		if !ex.Dropped && ex.Status == task.ExecutionCompleted {
			return true, nil
		}
	}
	return false, nil
}
