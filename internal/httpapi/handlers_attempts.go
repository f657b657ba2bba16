package httpapi

import (
	"fmt"
	"net/http"

	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
	"github.com/davidrudduck/vk-swarm-sub003/internal/messagestore"
)

func (h *handlers) getAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Attempts.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

// stopAttempt handles POST /attempts/{id}/stop, cancelling every still-running
// execution under the attempt (spec §4.I.4).
func (h *handlers) stopAttempt(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")
	a, err := h.deps.Attempts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Engine.CancelAttempt(r.Context(), a.TaskID, a.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type followUpParams struct {
	Prompt            string `json:"prompt" validate:"required"`
	ExecutorProfileID string `json:"executor_profile_id" validate:"required"`
}

func (h *handlers) followUpAttempt(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")
	a, err := h.deps.Attempts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var params followUpParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Engine.FollowUp(r.Context(), a.TaskID, a, params.Prompt, params.ExecutorProfileID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type mergeParams struct {
	Branch string `json:"branch" validate:"required"`
}

func (h *handlers) mergeAttempt(w http.ResponseWriter, r *http.Request) {
	h.runGitOp(w, r, func(params mergeParams, worktreePath string) error {
		return h.deps.Worktrees.Merge(r.Context(), worktreePath, params.Branch)
	})
}

func (h *handlers) rebaseAttempt(w http.ResponseWriter, r *http.Request) {
	h.runGitOp(w, r, func(params mergeParams, worktreePath string) error {
		return h.deps.Worktrees.Rebase(r.Context(), worktreePath, params.Branch)
	})
}

// runGitOp decodes a {branch} body, resolves the attempt's worktree path,
// and invokes op — the common shape behind merge and rebase.
func (h *handlers) runGitOp(w http.ResponseWriter, r *http.Request, op func(params mergeParams, worktreePath string) error) {
	a, err := h.deps.Attempts.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var params mergeParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}
	if err := op(params, a.WorktreePath); err != nil {
		writeError(w, vkerrors.NewGitError(vkerrors.GitBranchConflict, err.Error(), err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) pushAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Attempts.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Worktrees.Push(r.Context(), a.WorktreePath, a.Branch); err != nil {
		writeError(w, vkerrors.NewGitError(vkerrors.GitCloneFailed, err.Error(), err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) stashAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Attempts.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Worktrees.Stash(r.Context(), a.WorktreePath); err != nil {
		writeError(w, vkerrors.NewGitError(vkerrors.GitNothingToStash, err.Error(), err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) popStashAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Attempts.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Worktrees.PopStash(r.Context(), a.WorktreePath); err != nil {
		writeError(w, vkerrors.NewGitError(vkerrors.GitStashEmpty, err.Error(), err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// executionStream handles GET /attempts/{id}/executions/{execId}/stream: an
// SSE feed of the execution's message store (spec §4.D), history replayed
// first followed by live events until Finished.
func (h *handlers) executionStream(w http.ResponseWriter, r *http.Request) {
	execID := pathValue(r, "execId")
	store, ok := h.deps.MessageStores.Get(execID)
	if !ok {
		writeError(w, vkerrors.NotFoundError(fmt.Sprintf("execution %q has no active stream", execID)))
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	history, live, unsubscribe := store.Subscribe()
	defer unsubscribe()

	for _, e := range history {
		if err := messagestore.WriteSSE(w, e); err != nil {
			return
		}
	}
	if canFlush {
		flusher.Flush()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-live:
			if !ok {
				return
			}
			if err := messagestore.WriteSSE(w, e); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
			if e.Kind == messagestore.EventFinished {
				return
			}
		}
	}
}
