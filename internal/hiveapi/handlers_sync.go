package hiveapi

import (
	"encoding/json"
	"net/http"

	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

// syncAttempts ingests a batch of task attempts pushed by a node's
// internal/syncpub.Client ("POST /sync/attempts"). Upsert (not insert)
// since a retried push after a dropped confirmation must succeed the
// second time.
func (h *handlers) syncAttempts(w http.ResponseWriter, r *http.Request) {
	var items []*task.TaskAttempt
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, vkerrors.ValidationError("malformed sync payload: "+err.Error()))
		return
	}
	if err := h.deps.Attempts.UpsertSynced(r.Context(), items); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"accepted": len(items)})
}

func (h *handlers) syncExecutions(w http.ResponseWriter, r *http.Request) {
	var items []*task.ExecutionProcess
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, vkerrors.ValidationError("malformed sync payload: "+err.Error()))
		return
	}
	if err := h.deps.Executions.UpsertSynced(r.Context(), items); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"accepted": len(items)})
}

// syncLogs ingests log entries. Each node assigns its own
// autoincrement log id, which is meaningless once multiple nodes
// report into one hive database, so this is a plain append rather
// than an id-keyed upsert — a node never re-pushes a log entry it has
// already had hive-synced confirmed, so append-only cannot duplicate
// in the steady state.
func (h *handlers) syncLogs(w http.ResponseWriter, r *http.Request) {
	var entries []task.LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, vkerrors.ValidationError("malformed sync payload: "+err.Error()))
		return
	}
	if err := h.deps.Logs.AppendBatch(r.Context(), entries); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"accepted": len(entries)})
}
