// Package cleanup hosts the scheduled background workers named in spec
// §4.M: the log purger and the hive-side stale-project sweep and
// heartbeat monitor. The backup scheduler is not started here: it is
// internal/backup.Manager.RunScheduled, which cmd/server and cmd/hive
// launch separately.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/async"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/hive"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

// Workers wires the store ports each scheduled job needs. Fields left
// nil (e.g. Hive on a node that never runs the hive binary) simply
// disable the workers that depend on them.
type Workers struct {
	Logs task.LogStore
	Hive hive.Store

	LogRetention          time.Duration
	LogPurgeInterval      time.Duration
	StaleProjectThreshold time.Duration
	StaleProjectInterval  time.Duration
	HeartbeatThreshold    time.Duration
	HeartbeatInterval     time.Duration

	Logger *slog.Logger
}

// Start launches every configured worker as a panic-guarded background
// goroutine and returns immediately; each worker stops when ctx is
// cancelled. A zero interval disables that worker.
func (w *Workers) Start(ctx context.Context) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if w.Logs != nil && w.LogPurgeInterval > 0 {
		async.Go(logger, "cleanup.log-purger", func() {
			w.runLogPurger(ctx, logger)
		})
	}
	if w.Hive != nil && w.StaleProjectInterval > 0 {
		async.Go(logger, "cleanup.stale-projects", func() {
			w.runStaleProjectSweep(ctx, logger)
		})
	}
	if w.Hive != nil && w.HeartbeatInterval > 0 {
		async.Go(logger, "cleanup.heartbeat-monitor", func() {
			w.runHeartbeatMonitor(ctx, logger)
		})
	}
}

func (w *Workers) runLogPurger(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(w.LogPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-w.LogRetention)
			n, err := w.Logs.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				logger.Error("log purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged old logs", "rows", n, "cutoff", cutoff)
			}
		}
	}
}

// runStaleProjectSweep removes the hive's local-project report rows for
// online nodes that have gone silent on a project past the stale
// threshold (spec §4.M: "Offline nodes are spared — they may reconnect
// and re-sync").
func (w *Workers) runStaleProjectSweep(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(w.StaleProjectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-w.StaleProjectThreshold)
			ids, err := w.Hive.StaleProjectsForOnlineNodes(ctx, cutoff)
			if err != nil {
				logger.Error("stale project scan failed", "error", err)
				continue
			}
			if len(ids) == 0 {
				continue
			}
			n, err := w.Hive.DeleteStaleProjects(ctx, ids)
			if err != nil {
				logger.Error("stale project delete failed", "error", err)
				continue
			}
			logger.Info("removed stale project reports", "count", n)
		}
	}
}

// runHeartbeatMonitor marks nodes offline past the heartbeat threshold
// and fails their active assignments, so no task silently hangs on a
// dead node (spec §4.L, §4.M).
func (w *Workers) runHeartbeatMonitor(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(w.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := w.Hive.MarkStaleOffline(ctx, w.HeartbeatThreshold, time.Now())
			if err != nil {
				logger.Error("heartbeat sweep failed", "error", err)
				continue
			}
			for _, id := range ids {
				n, err := w.Hive.FailActiveForNode(ctx, id)
				if err != nil {
					logger.Error("failing assignments for offline node failed", "node_id", id, "error", err)
					continue
				}
				logger.Warn("node marked offline", "node_id", id, "failed_assignments", n)
			}
		}
	}
}
