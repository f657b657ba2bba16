package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/project"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	"github.com/davidrudduck/vk-swarm-sub003/internal/logbatcher"
	"github.com/davidrudduck/vk-swarm-sub003/internal/messagestore"
	"github.com/davidrudduck/vk-swarm-sub003/internal/store"
	"github.com/davidrudduck/vk-swarm-sub003/internal/worktree"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	run("init", "-q", "-b", "master")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "init")
}

type harness struct {
	engine     *Engine
	tasks      *store.TaskStore
	attempts   *store.AttemptStore
	executions *store.ExecutionStore
	batcher    *logbatcher.Batcher
	project    *project.Project
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pool, err := store.Open(context.Background(), store.PoolConfig{
		Path: filepath.Join(t.TempDir(), "test.sqlite3"), MaxConns: 4, BusyTimeout: 5000,
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(pool.DB.DB))
	t.Cleanup(func() { _ = pool.Close() })

	cfg := store.DefaultRetryConfig()
	projects := store.NewProjectStore(pool, cfg)
	activities := store.NewActivityStore(pool, cfg)
	tasks := store.NewTaskStore(pool, cfg, activities)
	attempts := store.NewAttemptStore(pool, cfg)
	executions := store.NewExecutionStore(pool, cfg)

	repoDir := t.TempDir()
	initRepo(t, repoDir)
	proj := &project.Project{ID: uuid.NewString(), Name: "demo", RepoPath: repoDir}
	require.NoError(t, projects.Create(context.Background(), proj))

	wtMgr := worktree.New(repoDir, t.TempDir(), nil)

	logStore := store.NewLogStore(pool, cfg)
	batcher := logbatcher.New(logStore, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go batcher.Run(ctx)

	registry, err := messagestore.NewRegistry(64)
	require.NoError(t, err)

	eng := New(tasks, attempts, executions, activities, wtMgr, registry, batcher, ShellAdapter{}, nil, nil)

	return &harness{engine: eng, tasks: tasks, attempts: attempts, executions: executions, batcher: batcher, project: proj}
}

func TestStartAttemptRunsScriptChainToDone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tk := &task.Task{ID: uuid.NewString(), ProjectID: h.project.ID, Title: "do thing", Status: task.StatusTodo}
	require.NoError(t, h.tasks.Create(ctx, tk))

	head := task.ExecutorAction{
		Kind:     task.ActionScriptRequest,
		Language: task.ScriptBash,
		Script:   "echo hello",
		Context:  task.ScriptContextSetup,
	}

	params := task.CreateAndStartParams{
		ProjectID:         h.project.ID,
		Title:             tk.Title,
		ExecutorProfileID: "test-executor",
		BaseBranch:        "master",
	}

	attempt, err := h.engine.StartAttempt(ctx, tk, params, h.project.RepoPath, head)
	require.NoError(t, err)
	require.NotEmpty(t, attempt.WorktreePath)

	require.Eventually(t, func() bool {
		got, err := h.tasks.Get(ctx, tk.ID)
		require.NoError(t, err)
		return got.Status == task.StatusDone
	}, 5*time.Second, 20*time.Millisecond)

	executions, err := h.executions.ListByAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	require.Equal(t, task.ExecutionCompleted, executions[0].Status)
}

func TestCancelAttemptMarksKilledAndTaskCancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tk := &task.Task{ID: uuid.NewString(), ProjectID: h.project.ID, Title: "long task", Status: task.StatusTodo}
	require.NoError(t, h.tasks.Create(ctx, tk))

	head := task.ExecutorAction{
		Kind:     task.ActionScriptRequest,
		Language: task.ScriptBash,
		Script:   "sleep 30",
		Context:  task.ScriptContextSetup,
	}
	params := task.CreateAndStartParams{
		ProjectID:         h.project.ID,
		Title:             tk.Title,
		ExecutorProfileID: "test-executor",
		BaseBranch:        "master",
	}

	attempt, err := h.engine.StartAttempt(ctx, tk, params, h.project.RepoPath, head)
	require.NoError(t, err)

	var executionID string
	require.Eventually(t, func() bool {
		executions, err := h.executions.ListByAttempt(ctx, attempt.ID)
		require.NoError(t, err)
		if len(executions) == 0 || executions[0].PID == nil {
			return false
		}
		executionID = executions[0].ID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.engine.CancelAttempt(ctx, tk.ID, attempt.ID))

	got, err := h.executions.Get(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, task.ExecutionKilled, got.Status)

	gotTask, err := h.tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusCancelled, gotTask.Status)
}
