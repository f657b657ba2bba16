// Command server is the node process (spec §4): it owns a project's
// local SQLite store, runs the execution engine against task attempts,
// and serves the HTTP/WebSocket API in internal/httpapi. Deployments
// that also participate in a hive cluster run cmd/hive separately and
// point this process at it via sync.hive_url.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/approvalsvc"
	"github.com/davidrudduck/vk-swarm-sub003/internal/async"
	"github.com/davidrudduck/vk-swarm-sub003/internal/backup"
	"github.com/davidrudduck/vk-swarm-sub003/internal/buildinfo"
	"github.com/davidrudduck/vk-swarm-sub003/internal/cleanup"
	"github.com/davidrudduck/vk-swarm-sub003/internal/config"
	"github.com/davidrudduck/vk-swarm-sub003/internal/diff"
	"github.com/davidrudduck/vk-swarm-sub003/internal/engine"
	"github.com/davidrudduck/vk-swarm-sub003/internal/githubsync"
	"github.com/davidrudduck/vk-swarm-sub003/internal/httpapi"
	"github.com/davidrudduck/vk-swarm-sub003/internal/logbatcher"
	"github.com/davidrudduck/vk-swarm-sub003/internal/logging"
	"github.com/davidrudduck/vk-swarm-sub003/internal/messagestore"
	"github.com/davidrudduck/vk-swarm-sub003/internal/observability"
	"github.com/davidrudduck/vk-swarm-sub003/internal/store"
	"github.com/davidrudduck/vk-swarm-sub003/internal/syncpub"
	"github.com/davidrudduck/vk-swarm-sub003/internal/taskevents"
	"github.com/davidrudduck/vk-swarm-sub003/internal/worktree"
)

// Set via -ldflags "-X main.version=... -X main.gitCommit=... -X main.buildTimestamp=...".
var (
	version        = "dev"
	gitCommit      = "unknown"
	buildTimestamp = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	buildinfo.Init(buildinfo.Info{
		Version:        version,
		GitCommit:      gitCommit,
		BuildTimestamp: buildTimestamp,
	})

	cfg, meta, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := buildLogger(cfg.Logging)
	logger.Info("starting server", "version", version, "database", meta.Source("database.path"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Open(ctx, store.PoolConfig{
		Path:        cfg.Database.Path,
		MaxConns:    cfg.Database.MaxConnections,
		BusyTimeout: int(cfg.Database.BusyTimeout.Milliseconds()),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.DB.Close()

	backupMgr, err := backup.NewManager(cfg.Database.Path, cfg.Backup.Dir, cfg.Backup.RetainScheduled, cfg.Backup.RetainPreMigration, logger)
	if err != nil {
		return fmt.Errorf("init backup manager: %w", err)
	}
	backupMgr.PreMigrationSnapshot()

	if err := store.Migrate(pool.DB.DB); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := backupMgr.TrimRetention(backup.KindPreMigration); err != nil {
		logger.Warn("trim pre-migration snapshots failed", "error", err)
	}

	retryCfg := store.RetryConfig{
		MaxRetries:   cfg.Retry.MaxRetries,
		BaseDelay:    cfg.Retry.BaseDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		JitterFactor: cfg.Retry.JitterFactor,
	}

	activities := store.NewActivityStore(pool, retryCfg)
	projects := store.NewProjectStore(pool, retryCfg)
	tasks := store.NewTaskStore(pool, retryCfg, activities)
	attempts := store.NewAttemptStore(pool, retryCfg)
	executions := store.NewExecutionStore(pool, retryCfg)
	logs := store.NewLogStore(pool, retryCfg)
	approvals := store.NewApprovalStore(pool, retryCfg)
	taskVariables := store.NewVariableStore(pool, retryCfg)

	dataDir := filepath.Dir(cfg.Database.Path)
	reposDir := filepath.Join(dataDir, "repos")
	worktreeDir := cfg.Git.WorktreeRoot
	if worktreeDir == "" {
		worktreeDir = filepath.Join(dataDir, "worktrees")
	}
	worktrees := worktree.New(reposDir, worktreeDir, logger)

	messageStores, err := messagestore.NewRegistry(512)
	if err != nil {
		return fmt.Errorf("init message store registry: %w", err)
	}

	batcher := logbatcher.New(logs, logger)
	async.Go(logger, "logbatcher.run", func() { batcher.Run(ctx) })

	eng := engine.New(tasks, attempts, executions, activities, worktrees, messageStores, batcher, engine.ShellAdapter{}, taskVariables, logger)

	approvalBackend := approvalsvc.NewInteractiveBackend()
	approvalService := approvalsvc.New(approvals, approvalBackend, eng, cfg.Approval.Timeout)

	githubSyncer := githubsync.New(projects, nil, "")

	bus := taskevents.NewBus()
	diffGenerator := diff.NewGenerator(3, false)

	backupInterval := cfg.Backup.IntervalHours
	if !cfg.Backup.ScheduledEnabled {
		backupInterval = 0
	}
	async.Go(logger, "backup.scheduled", func() { backupMgr.RunScheduled(ctx, backupInterval, logger) })

	workers := &cleanup.Workers{
		Logs:                  logs,
		LogRetention:          cfg.Cleanup.LogRetention,
		LogPurgeInterval:      cfg.Cleanup.LogPurgeInterval,
		StaleProjectThreshold: cfg.Cleanup.StaleProjectThreshold,
		StaleProjectInterval:  cfg.Cleanup.StaleProjectInterval,
		Logger:                logger,
	}
	workers.Start(ctx)

	if cfg.Sync.HiveURL != "" {
		syncClient := syncpub.NewClient(cfg.Sync.HiveURL, nil)
		publisher := syncpub.New(attempts, executions, logs, syncClient, cfg.Sync.BatchSize, logger)
		async.Go(logger, "syncpub.publisher", func() { publisher.Run(ctx, cfg.Sync.DrainInterval) })
	}

	deps := httpapi.Deps{
		Projects:        projects,
		Tasks:           tasks,
		Attempts:        attempts,
		Executions:      executions,
		Logs:            logs,
		Approvals:       approvals,
		ApprovalService: approvalService,
		Engine:          eng,
		Worktrees:       worktrees,
		GitHub:          githubSyncer,
		MessageStores:   messageStores,
		TaskEvents:      bus,
		DiffGenerator:   diffGenerator,
		Logger:          logger,
	}
	routerCfg := httpapi.Config{
		Environment:        os.Getenv("VK_ENVIRONMENT"),
		AllowedOrigins:     []string{"*"},
		RateLimitPerMin:    600,
		NonStreamTimeout:   30 * time.Second,
		WSPingIntervalList: cfg.Server.WSPingIntervalList,
		WSPingIntervalExec: cfg.Server.WSPingIntervalExec,
		WSPongTimeoutList:  cfg.Server.WSPongTimeoutList,
		WSPongTimeoutExec:  cfg.Server.WSPongTimeoutExec,
	}
	handler := httpapi.NewRouter(deps, routerCfg)

	tracing, err := observability.NewTracing(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	rootMux := http.NewServeMux()
	rootMux.Handle("/metrics", metrics.Handler())
	rootMux.Handle("/", handler)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      rootMux,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return serveUntilSignal(ctx, httpServer, logger)
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	out := logging.Config{Level: cfg.Level, Format: cfg.Format}
	if cfg.FileEnabled && cfg.Dir != "" {
		sink, err := logging.NewFileSink(cfg.Dir, "server", cfg.MaxFiles)
		if err == nil {
			out.Output = sink
		}
	}
	return logging.New(out)
}

// serveUntilSignal blocks until the server exits on its own, or ctx is
// cancelled by the interrupt/SIGTERM signal handler installed in run,
// in which case it drains in-flight requests before returning.
func serveUntilSignal(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr := server.Shutdown(shutdownCtx)

		serveErr := <-errCh
		if serveErr == http.ErrServerClosed {
			serveErr = nil
		}
		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		return serveErr
	}
}
