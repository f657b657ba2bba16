package engine

import (
	"context"

	"github.com/davidrudduck/vk-swarm-sub003/internal/async"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// FollowUp issues a CodingAgentFollowUp step against attempt, reusing the
// prior execution's session id so the agent preserves context (spec
// §4.I.3). If the attempt's most recent chain ended in failure, a
// restore boundary is materialized at the last successful (non-dropped)
// execution before the new step is queued, so replay/restore logic
// skips the failed tail.
func (e *Engine) FollowUp(ctx context.Context, taskID string, attempt *task.TaskAttempt, prompt, executorProfileID string) error {
	executions, err := e.executions.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return err
	}
	if len(executions) == 0 {
		return vkerrors.ValidationError("attempt has no prior execution to follow up on")
	}

	lastSuccessful, sessionID, chainFailed := lastSuccessfulExecution(executions)
	if lastSuccessful == nil {
		return vkerrors.ValidationError("attempt has no successful execution to follow up from")
	}

	if chainFailed {
		if _, err := e.executions.SetRestoreBoundary(ctx, attempt.ID, lastSuccessful.ID); err != nil {
			return err
		}
	}

	action := task.ExecutorAction{
		Kind:              task.ActionCodingAgentFollowUp,
		Prompt:            prompt,
		ExecutorProfileID: executorProfileID,
		SessionID:         sessionID,
	}
	nextExecution := &task.ExecutionProcess{
		TaskAttemptID:  attempt.ID,
		RunReason:      task.RunReasonCodingAgent,
		ExecutorAction: action,
		Status:         task.ExecutionRunning,
		StartedAt:      timeNow(),
	}
	if err := e.executions.Create(ctx, nextExecution); err != nil {
		return err
	}

	async.Go(e.logger, "engine.runChain.followup", func() {
		e.runChain(context.Background(), taskID, attempt, nextExecution)
	})
	return nil
}

// lastSuccessfulExecution walks executions (ascending created_at,
// dropped entries skipped per spec §4.I.2's replay rule) and returns the
// most recent non-dropped completed execution, its session id (carried
// on the coding-agent action kinds), and whether the chain's final
// (non-dropped) execution did NOT end in success.
func lastSuccessfulExecution(executions []*task.ExecutionProcess) (last *task.ExecutionProcess, sessionID string, chainFailed bool) {
	var lastNonDropped *task.ExecutionProcess
	for _, ex := range executions {
		if ex.Dropped {
			continue
		}
		lastNonDropped = ex
		if ex.Status == task.ExecutionCompleted {
			last = ex
			if sid := sessionIDOf(ex.ExecutorAction); sid != "" {
				sessionID = sid
			}
		}
	}
	chainFailed = lastNonDropped == nil || lastNonDropped.Status != task.ExecutionCompleted
	return last, sessionID, chainFailed
}

func sessionIDOf(action task.ExecutorAction) string {
	if action.SessionID != "" {
		return action.SessionID
	}
	return ""
}
