package syncpub

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/davidrudduck/vk-swarm-sub003/internal/async"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

var timeNow = func() time.Time { return time.Now() }

// Publisher drains unsynced task attempts, execution processes, and log
// entries to the hive, one independent goroutine per entity kind (spec
// §4.L: "ordering: for each entity kind, unsynced items are drained in
// ascending created_at"; FK-safety across kinds is already enforced by
// the stores' FindUnsynced join queries, so the three kinds can drain
// concurrently without violating it).
type Publisher struct {
	attempts   task.AttemptStore
	executions task.ExecutionStore
	logs       task.LogStore
	client     *Client
	batchSize  int
	logger     *slog.Logger
}

// New builds a Publisher. batchSize <= 0 falls back to 200.
func New(attempts task.AttemptStore, executions task.ExecutionStore, logs task.LogStore, client *Client, batchSize int, logger *slog.Logger) *Publisher {
	if batchSize <= 0 {
		batchSize = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{attempts: attempts, executions: executions, logs: logs, client: client, batchSize: batchSize, logger: logger}
}

// DrainOnce runs one drain pass over all three entity kinds concurrently
// and waits for all of them to finish.
func (p *Publisher) DrainOnce(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.drainAttempts(gctx) })
	g.Go(func() error { return p.drainExecutions(gctx) })
	g.Go(func() error { return p.drainLogs(gctx) })
	return g.Wait()
}

// Run starts the drain loop on a ticker at interval, until ctx is
// cancelled. interval <= 0 disables the loop entirely.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	async.Go(p.logger, "syncpub.publisher", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.DrainOnce(ctx); err != nil {
					p.logger.Error("sync drain failed", "error", err)
				}
			}
		}
	})
}

func (p *Publisher) drainAttempts(ctx context.Context) error {
	for {
		items, err := p.attempts.FindUnsynced(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := p.client.Push(ctx, "/sync/attempts", items); err != nil {
			p.logger.Warn("attempt sync push failed, retrying next drain", "error", err, "count", len(items))
			return nil
		}
		now := timeNow()
		for _, a := range items {
			if err := p.attempts.MarkHiveSynced(ctx, a.ID, now); err != nil {
				p.logger.Error("mark attempt synced failed", "attempt_id", a.ID, "error", err)
			}
		}
		if len(items) < p.batchSize {
			return nil
		}
	}
}

func (p *Publisher) drainExecutions(ctx context.Context) error {
	for {
		items, err := p.executions.FindUnsynced(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := p.client.Push(ctx, "/sync/executions", items); err != nil {
			p.logger.Warn("execution sync push failed, retrying next drain", "error", err, "count", len(items))
			return nil
		}
		now := timeNow()
		for _, e := range items {
			if err := p.executions.MarkHiveSynced(ctx, e.ID, now); err != nil {
				p.logger.Error("mark execution synced failed", "execution_id", e.ID, "error", err)
			}
		}
		if len(items) < p.batchSize {
			return nil
		}
	}
}

func (p *Publisher) drainLogs(ctx context.Context) error {
	for {
		items, err := p.logs.FindUnsynced(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := p.client.Push(ctx, "/sync/logs", items); err != nil {
			p.logger.Warn("log sync push failed, retrying next drain", "error", err, "count", len(items))
			return nil
		}
		ids := make([]int64, len(items))
		for i, e := range items {
			ids[i] = e.ID
		}
		confirmed, err := p.logs.MarkHiveSyncedBatch(ctx, ids, timeNow())
		if err != nil {
			return err
		}
		if confirmed < len(ids) {
			// Batch confirmation partial failure (spec §4.L): report but
			// don't treat as fatal, the unconfirmed rows remain unsynced
			// and are retried on the next drain.
			p.logger.Warn("partial log sync confirmation", "confirmed", confirmed, "requested", len(ids))
		}
		if len(items) < p.batchSize {
			return nil
		}
	}
}
