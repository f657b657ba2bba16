package hiveapi

import (
	"context"
	"log/slog"

	"github.com/davidrudduck/vk-swarm-sub003/internal/auth"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/hive"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

// AttemptIngestStore is the narrow slice of task.AttemptStore the sync
// ingest endpoint needs: an idempotent upsert rather than the
// insert-only Create a node uses for its own locally-created rows.
type AttemptIngestStore interface {
	UpsertSynced(ctx context.Context, items []*task.TaskAttempt) error
}

// ExecutionIngestStore mirrors AttemptIngestStore for execution processes.
type ExecutionIngestStore interface {
	UpsertSynced(ctx context.Context, items []*task.ExecutionProcess) error
}

// Deps bundles everything the hive's handlers call into.
type Deps struct {
	Hive       hive.Store
	Attempts   AttemptIngestStore
	Executions ExecutionIngestStore
	Logs       task.LogStore

	KeyIssuer *auth.KeyIssuer
	Verifier  *auth.Verifier
	Tokens    *auth.TokenManager

	Logger *slog.Logger
}

// Config tunes hiveapi's own middleware chain; it is deliberately
// smaller than httpapi.Config since the hive's clients are a fixed set
// of trusted nodes, not arbitrary browsers (no CORS, no gzip).
type Config struct {
	RateLimitPerMin int
}
