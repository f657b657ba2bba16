package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/approval"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/project"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite3")
	pool, err := Open(context.Background(), PoolConfig{Path: dbPath, MaxConns: 4, BusyTimeout: 5000})
	require.NoError(t, err)
	require.NoError(t, Migrate(pool.DB.DB))
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func seedProject(t *testing.T, ps *ProjectStore) *project.Project {
	t.Helper()
	p := &project.Project{ID: uuid.NewString(), Name: "demo", RepoPath: "/tmp/demo"}
	require.NoError(t, ps.Create(context.Background(), p))
	return p
}

func TestTaskStoreCreateGetUpdateStatusClearsDismissal(t *testing.T) {
	pool := newTestPool(t)
	ps := NewProjectStore(pool, DefaultRetryConfig())
	activities := NewActivityStore(pool, DefaultRetryConfig())
	ts := NewTaskStore(pool, DefaultRetryConfig(), activities)
	ctx := context.Background()

	p := seedProject(t, ps)
	tk := &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "do thing", Status: task.StatusTodo}
	require.NoError(t, ts.Create(ctx, tk))

	got, err := ts.Get(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, "do thing", got.Title)

	require.NoError(t, activities.Dismiss(ctx, tk.ID))
	dismissed, err := activities.IsDismissed(ctx, tk.ID)
	require.NoError(t, err)
	require.True(t, dismissed)

	require.NoError(t, ts.UpdateStatus(ctx, tk.ID, task.StatusInProgress))
	dismissed, err = activities.IsDismissed(ctx, tk.ID)
	require.NoError(t, err)
	require.False(t, dismissed)
}

func TestTaskStoreDeleteNullifiesChildParent(t *testing.T) {
	pool := newTestPool(t)
	ps := NewProjectStore(pool, DefaultRetryConfig())
	ts := NewTaskStore(pool, DefaultRetryConfig(), nil)
	ctx := context.Background()

	p := seedProject(t, ps)
	parent := &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "parent", Status: task.StatusTodo}
	require.NoError(t, ts.Create(ctx, parent))
	parentID := parent.ID
	child := &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "child", Status: task.StatusTodo, ParentTaskID: &parentID}
	require.NoError(t, ts.Create(ctx, child))

	require.NoError(t, ts.Delete(ctx, parent.ID))

	got, err := ts.Get(ctx, child.ID)
	require.NoError(t, err)
	require.Nil(t, got.ParentTaskID)
}

func TestExecutionStoreRestoreBoundaryIsMonotonic(t *testing.T) {
	pool := newTestPool(t)
	ps := NewProjectStore(pool, DefaultRetryConfig())
	ts := NewTaskStore(pool, DefaultRetryConfig(), nil)
	as := NewAttemptStore(pool, DefaultRetryConfig())
	es := NewExecutionStore(pool, DefaultRetryConfig())
	ctx := context.Background()

	p := seedProject(t, ps)
	tk := &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "t", Status: task.StatusTodo}
	require.NoError(t, ts.Create(ctx, tk))
	attempt := &task.TaskAttempt{ID: uuid.NewString(), TaskID: tk.ID, Executor: "claude", Branch: "vk/1", BaseBranch: "main", WorktreePath: "/tmp/wt"}
	require.NoError(t, as.Create(ctx, attempt))

	first := &task.ExecutionProcess{
		ID: uuid.NewString(), TaskAttemptID: attempt.ID, RunReason: task.RunReasonCodingAgent,
		ExecutorAction: task.ExecutorAction{Kind: task.ActionCodingAgentInitialRequest, Prompt: "go"},
		Status: task.ExecutionCompleted,
	}
	require.NoError(t, es.Create(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := &task.ExecutionProcess{
		ID: uuid.NewString(), TaskAttemptID: attempt.ID, RunReason: task.RunReasonCodingAgent,
		ExecutorAction: task.ExecutorAction{Kind: task.ActionCodingAgentFollowUp, Prompt: "continue"},
		Status: task.ExecutionRunning,
	}
	require.NoError(t, es.Create(ctx, second))

	n, err := es.SetRestoreBoundary(ctx, attempt.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := es.Get(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, got.Dropped)
	require.Equal(t, task.ActionCodingAgentFollowUp, got.ExecutorAction.Kind)

	// Re-applying the same boundary drops nothing new: monotonic, no un-drop.
	n, err = es.SetRestoreBoundary(ctx, attempt.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestVariableStoreAncestorChainNearestFirst(t *testing.T) {
	pool := newTestPool(t)
	ps := NewProjectStore(pool, DefaultRetryConfig())
	ts := NewTaskStore(pool, DefaultRetryConfig(), nil)
	vs := NewVariableStore(pool, DefaultRetryConfig())
	ctx := context.Background()

	p := seedProject(t, ps)
	grandparent := &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "gp", Status: task.StatusTodo}
	require.NoError(t, ts.Create(ctx, grandparent))
	gpID := grandparent.ID
	parent := &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "p", Status: task.StatusTodo, ParentTaskID: &gpID}
	require.NoError(t, ts.Create(ctx, parent))
	parentID := parent.ID
	child := &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "c", Status: task.StatusTodo, ParentTaskID: &parentID}
	require.NoError(t, ts.Create(ctx, child))

	require.NoError(t, vs.Set(ctx, grandparent.ID, "TOKEN", "from-grandparent"))
	require.NoError(t, vs.Set(ctx, parent.ID, "TOKEN", "from-parent"))

	chain, err := vs.AncestorChain(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, []string{child.ID, parent.ID, grandparent.ID}, chain)
}

func TestApprovalStoreResolveRoundTripsQuestions(t *testing.T) {
	pool := newTestPool(t)
	ps := NewProjectStore(pool, DefaultRetryConfig())
	ts := NewTaskStore(pool, DefaultRetryConfig(), nil)
	as := NewAttemptStore(pool, DefaultRetryConfig())
	es := NewExecutionStore(pool, DefaultRetryConfig())
	aps := NewApprovalStore(pool, DefaultRetryConfig())
	ctx := context.Background()

	p := seedProject(t, ps)
	tk := &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "t", Status: task.StatusTodo}
	require.NoError(t, ts.Create(ctx, tk))
	attempt := &task.TaskAttempt{ID: uuid.NewString(), TaskID: tk.ID, Executor: "claude", Branch: "vk/1", BaseBranch: "main", WorktreePath: "/tmp/wt"}
	require.NoError(t, as.Create(ctx, attempt))
	exec := &task.ExecutionProcess{ID: uuid.NewString(), TaskAttemptID: attempt.ID, RunReason: task.RunReasonCodingAgent, Status: task.ExecutionRunning}
	require.NoError(t, es.Create(ctx, exec))

	a := &approval.Approval{
		ID: uuid.NewString(), ExecutionProcessID: exec.ID, Kind: approval.KindQuestions,
		ToolCallID: "call-1", Status: approval.StatusPending,
		Questions: []approval.Question{{Question: "proceed?", Header: "confirm", Options: []approval.Option{{Label: "yes"}, {Label: "no"}}}},
	}
	require.NoError(t, aps.Create(ctx, a))

	pending, err := aps.ListPendingForExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "proceed?", pending[0].Questions[0].Question)

	require.NoError(t, aps.Resolve(ctx, a.ID, approval.StatusApproved, nil, map[string]string{"proceed?": "yes"}))
	got, err := aps.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, got.Status)
	require.Equal(t, "yes", got.Answers["proceed?"])
}

func TestActivityStoreDashboardGroupsByProjectAndStatus(t *testing.T) {
	pool := newTestPool(t)
	ps := NewProjectStore(pool, DefaultRetryConfig())
	ts := NewTaskStore(pool, DefaultRetryConfig(), nil)
	activities := NewActivityStore(pool, DefaultRetryConfig())
	ctx := context.Background()

	p := seedProject(t, ps)
	require.NoError(t, ts.Create(ctx, &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "a", Status: task.StatusTodo}))
	require.NoError(t, ts.Create(ctx, &task.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "b", Status: task.StatusDone}))

	counts, err := activities.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, 1, counts[0].ByStatus[string(task.StatusTodo)])
	require.Equal(t, 1, counts[0].ByStatus[string(task.StatusDone)])
}
