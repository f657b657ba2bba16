// Package async provides small helpers for running background goroutines
// that must never take the process down with them.
package async

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a goroutine guarded by panic recovery. Background workers
// (schedulers, the batcher, the sync publisher, heartbeat monitors) must
// survive a panic in one tick without terminating the process.
func Go(logger *slog.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without letting them propagate. Call it
// deferred at the top of any goroutine that isn't already wrapped by Go.
func Recover(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		if logger == nil {
			return
		}
		logger.Error("goroutine panic",
			"component", name,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}
