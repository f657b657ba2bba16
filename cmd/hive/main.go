// Command hive is the authoritative cluster process (spec §4.L/§6): it
// accepts node registrations and heartbeats, brokers task assignments
// across nodes, issues short-lived connection tokens, and ingests the
// task attempts/executions/logs each node's internal/syncpub.Publisher
// pushes to it. It shares cmd/server's config and store packages but
// talks to its own database (VK_DATABASE_PATH for the hive deployment
// should point at a separate file from any node's).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/async"
	"github.com/davidrudduck/vk-swarm-sub003/internal/auth"
	"github.com/davidrudduck/vk-swarm-sub003/internal/backup"
	"github.com/davidrudduck/vk-swarm-sub003/internal/buildinfo"
	"github.com/davidrudduck/vk-swarm-sub003/internal/cleanup"
	"github.com/davidrudduck/vk-swarm-sub003/internal/config"
	"github.com/davidrudduck/vk-swarm-sub003/internal/hiveapi"
	"github.com/davidrudduck/vk-swarm-sub003/internal/logging"
	"github.com/davidrudduck/vk-swarm-sub003/internal/observability"
	"github.com/davidrudduck/vk-swarm-sub003/internal/store"
)

var (
	version        = "dev"
	gitCommit      = "unknown"
	buildTimestamp = "unknown"
)

const defaultHiveAddr = ":8081"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "hive:", err)
		os.Exit(1)
	}
}

func run() error {
	buildinfo.Init(buildinfo.Info{
		Version:        version,
		GitCommit:      gitCommit,
		BuildTimestamp: buildTimestamp,
	})

	cfg, _, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := buildLogger(cfg.Logging)

	addr := os.Getenv("VK_HIVE_ADDR")
	if addr == "" {
		addr = defaultHiveAddr
	}

	secret := os.Getenv("VK_JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret-change-me"
		logger.Warn("VK_JWT_SECRET not set, using an insecure development default — set it before running against real nodes")
	}

	logger.Info("starting hive", "version", version, "addr", addr)

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

	hiveStore := store.NewHiveStore(pool, retryCfg)
	attempts := store.NewAttemptStore(pool, retryCfg)
	executions := store.NewExecutionStore(pool, retryCfg)
	logs := store.NewLogStore(pool, retryCfg)

	verifier := auth.NewVerifier(hiveStore)
	keyIssuer := auth.NewKeyIssuer(hiveStore)
	tokens, err := auth.NewTokenManager(secret, 0, 0)
	if err != nil {
		return fmt.Errorf("init token manager: %w", err)
	}

	backupInterval := cfg.Backup.IntervalHours
	if !cfg.Backup.ScheduledEnabled {
		backupInterval = 0
	}
	async.Go(logger, "backup.scheduled", func() { backupMgr.RunScheduled(ctx, backupInterval, logger) })

	workers := &cleanup.Workers{
		Hive:                  hiveStore,
		StaleProjectThreshold: cfg.Cleanup.StaleProjectThreshold,
		StaleProjectInterval:  cfg.Cleanup.StaleProjectInterval,
		HeartbeatThreshold:    cfg.Sync.HeartbeatTimeout,
		HeartbeatInterval:     cfg.Sync.HeartbeatInterval,
		Logger:                logger,
	}
	workers.Start(ctx)

	deps := hiveapi.Deps{
		Hive:       hiveStore,
		Attempts:   attempts,
		Executions: executions,
		Logs:       logs,
		KeyIssuer:  keyIssuer,
		Verifier:   verifier,
		Tokens:     tokens,
		Logger:     logger,
	}
	handler := hiveapi.NewRouter(deps, hiveapi.Config{RateLimitPerMin: 600})

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
		Addr:         addr,
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
		sink, err := logging.NewFileSink(cfg.Dir, "hive", cfg.MaxFiles)
		if err == nil {
			out.Output = sink
		}
	}
	return logging.New(out)
}

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
