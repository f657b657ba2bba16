package engine

import (
	"context"
	"os/exec"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

// Adapter builds the OS command for one ExecutorAction step, keeping
// concrete coding-agent CLIs as opaque subprocesses behind this contract
// (spec §9: "treat coding agents as opaque subprocesses"). The engine
// never branches on which agent is configured; it only asks the adapter
// for a command to run in the attempt's worktree.
type Adapter interface {
	// BuildCommand returns the *exec.Cmd for action, rooted at worktreePath.
	// For CodingAgentFollowUp, action.SessionID carries the prior session
	// id the adapter should resume (spec §4.I.3).
	BuildCommand(ctx context.Context, action task.ExecutorAction, worktreePath string) (*exec.Cmd, error)
}

// ShellAdapter runs ScriptRequest steps directly via the configured shell
// and treats every other action kind as a no-op success, for engine tests
// and for environments with no coding-agent adapter configured.
type ShellAdapter struct{}

func (ShellAdapter) BuildCommand(ctx context.Context, action task.ExecutorAction, worktreePath string) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	switch action.Kind {
	case task.ActionScriptRequest:
		switch action.Language {
		case task.ScriptPwsh:
			cmd = exec.CommandContext(ctx, "pwsh", "-Command", action.Script)
		default:
			cmd = exec.CommandContext(ctx, "sh", "-c", action.Script)
		}
	default:
		cmd = exec.CommandContext(ctx, "true")
	}
	cmd.Dir = worktreePath
	return cmd, nil
}
