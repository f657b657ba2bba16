// Package logbatcher implements the log-entry batcher (spec §4.E): a
// long-lived worker with a command inbox that buffers log lines per
// execution and flushes them in batches through the retryable store.
package logbatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/async"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

const (
	// BatchSize is the per-execution buffer flush trigger (spec §4.E).
	BatchSize = 100
	// FlushInterval is the global periodic tick flush trigger (spec §4.E).
	FlushInterval = 250 * time.Millisecond
)

type commandKind int

const (
	cmdAddLog commandKind = iota
	cmdFinish
	cmdFinishSync
	cmdShutdown
)

type command struct {
	kind commandKind
	exec string
	msg  task.LogEntry
	done chan struct{} // closed once Shutdown has fully drained
}

// Batcher buffers LogEntry rows per execution and flushes them through a
// task.LogStore. Ordering within a single execution's buffer is preserved
// by flushing entries in append order (spec §4.E, §8 invariant 3).
type Batcher struct {
	store  task.LogStore
	logger *slog.Logger
	cmds   chan command

	buffers map[string][]task.LogEntry
	// finished tracks executions that received Finish, so a later AddLog
	// (spec §4.E: "Finish MUST be idempotent; a later AddLog after Finish
	// is still buffered and flushed") is not rejected, only noted.
	finished map[string]bool
}

// New builds a Batcher. Call Run in its own goroutine to start processing.
func New(store task.LogStore, logger *slog.Logger) *Batcher {
	return &Batcher{
		store:    store,
		logger:   logger,
		cmds:     make(chan command, 1024),
		buffers:  map[string][]task.LogEntry{},
		finished: map[string]bool{},
	}
}

// AddLog enqueues a log entry for batching.
func (b *Batcher) AddLog(execID string, entry task.LogEntry) {
	b.cmds <- command{kind: cmdAddLog, exec: execID, msg: entry}
}

// Finish flushes and closes out an execution's buffer. Idempotent.
func (b *Batcher) Finish(execID string) {
	b.cmds <- command{kind: cmdFinish, exec: execID}
}

// FinishSync flushes and closes out an execution's buffer and blocks
// until that flush has completed. Used by the engine's cancellation path
// (spec §4.I.4 step 5: "flush completes before the engine returns"),
// where Finish's fire-and-forget semantics aren't strong enough.
func (b *Batcher) FinishSync(execID string) {
	done := make(chan struct{})
	b.cmds <- command{kind: cmdFinishSync, exec: execID, done: done}
	<-done
}

// Shutdown flushes every remaining buffer and blocks until done.
func (b *Batcher) Shutdown() {
	done := make(chan struct{})
	b.cmds <- command{kind: cmdShutdown, done: done}
	<-done
}

// Run processes the command inbox until Shutdown, arbitrating between
// commands and the periodic flush tick the way the teacher's scheduler
// loops select between a work channel and a ticker.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.flushAll(context.Background())
			return
		case cmd := <-b.cmds:
			switch cmd.kind {
			case cmdAddLog:
				b.buffers[cmd.exec] = append(b.buffers[cmd.exec], cmd.msg)
				if len(b.buffers[cmd.exec]) >= BatchSize {
					b.flush(ctx, cmd.exec)
				}
			case cmdFinish:
				b.finished[cmd.exec] = true
				b.flush(ctx, cmd.exec)
			case cmdFinishSync:
				b.finished[cmd.exec] = true
				b.flush(ctx, cmd.exec)
				close(cmd.done)
			case cmdShutdown:
				b.flushAll(ctx)
				close(cmd.done)
				return
			}
		case <-ticker.C:
			b.flushAll(ctx)
		}
	}
}

func (b *Batcher) flush(ctx context.Context, execID string) {
	entries := b.buffers[execID]
	if len(entries) == 0 {
		return
	}
	delete(b.buffers, execID)
	if err := b.store.AppendBatch(ctx, entries); err != nil {
		if b.logger != nil {
			b.logger.Error("log batch flush failed", "execution_id", execID, "count", len(entries), "error", err)
		}
	}
}

func (b *Batcher) flushAll(ctx context.Context) {
	for execID := range b.buffers {
		b.flush(ctx, execID)
	}
}

// RunDetached starts the batcher's Run loop under the panic-guard wrapper
// every background worker in this module uses.
func RunDetached(ctx context.Context, b *Batcher, logger *slog.Logger) {
	async.Go(logger, "logbatcher", func() { b.Run(ctx) })
}
