package httpapi

import (
	"log/slog"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/approvalsvc"
	"github.com/davidrudduck/vk-swarm-sub003/internal/diff"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/approval"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/project"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	"github.com/davidrudduck/vk-swarm-sub003/internal/engine"
	"github.com/davidrudduck/vk-swarm-sub003/internal/githubsync"
	"github.com/davidrudduck/vk-swarm-sub003/internal/messagestore"
	"github.com/davidrudduck/vk-swarm-sub003/internal/taskevents"
	"github.com/davidrudduck/vk-swarm-sub003/internal/worktree"
)

// Deps collects every port and collaborator the route handlers need. It is
// built once in cmd/server and passed to NewRouter.
type Deps struct {
	Projects  project.Store
	Tasks     task.Store
	Attempts  task.AttemptStore
	Executions task.ExecutionStore
	Logs      task.LogStore
	Approvals approval.Store

	ApprovalService *approvalsvc.Service
	Engine          *engine.Engine
	Worktrees       *worktree.Manager
	GitHub          *githubsync.Syncer
	MessageStores   *messagestore.Registry
	TaskEvents      *taskevents.Bus
	DiffGenerator   *diff.Generator

	Logger *slog.Logger
}

// Config bounds the router's cross-cutting behavior (spec §6/§7).
type Config struct {
	Environment       string
	AllowedOrigins    []string
	RateLimitPerMin   int
	NonStreamTimeout  time.Duration
	WSPingIntervalList time.Duration
	WSPingIntervalExec time.Duration
	WSPongTimeoutList  time.Duration
	WSPongTimeoutExec  time.Duration
}
