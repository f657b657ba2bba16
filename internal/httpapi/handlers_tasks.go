package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	"github.com/davidrudduck/vk-swarm-sub003/internal/taskevents"
)

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	includeArchived := r.URL.Query().Get("include_archived") == "true"

	if projectID == "" {
		tasks, err := h.deps.Tasks.ListAll(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, tasks)
		return
	}
	tasks, err := h.deps.Tasks.ListByProject(r.Context(), projectID, includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tasks)
}

// createAndStartTask handles POST /tasks/create-and-start: creates the Task
// row, then hands it to the engine to allocate a worktree and drive the
// first executor-action step (spec §4.I).
func (h *handlers) createAndStartTask(w http.ResponseWriter, r *http.Request) {
	var params task.CreateAndStartParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}

	proj, err := h.deps.Projects.Get(r.Context(), params.ProjectID)
	if err != nil {
		writeError(w, err)
		return
	}

	prompt := params.Title
	if params.Description != nil && *params.Description != "" {
		prompt = *params.Description
	}

	t := &task.Task{
		ID:          uuid.NewString(),
		ProjectID:   params.ProjectID,
		Title:       params.Title,
		Description: params.Description,
		Status:      task.StatusTodo,
	}
	if err := h.deps.Tasks.Create(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	h.publishTaskEvent(taskevents.ChangeCreated, t)

	head := task.ExecutorAction{
		Kind:              task.ActionCodingAgentInitialRequest,
		Prompt:            prompt,
		ExecutorProfileID: params.ExecutorProfileID,
	}
	attempt, err := h.deps.Engine.StartAttempt(r.Context(), t, params, proj.RepoPath, head)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"task": t, "attempt": attempt})
}

func (h *handlers) archiveTask(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *handlers) unarchiveTask(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *handlers) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	id := pathValue(r, "id")
	if err := h.deps.Tasks.Archive(r.Context(), id, archived); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.deps.Tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	kind := taskevents.ChangeUpdated
	if archived {
		kind = taskevents.ChangeArchived
	}
	h.publishTaskEvent(kind, t)
	writeData(w, http.StatusOK, t)
}

// assignTask handles POST /tasks/{id}/assign (spec §6), a remote/hive
// reassignment guarded by optimistic concurrency on remote_version.
func (h *handlers) assignTask(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")
	var params task.AssignParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Tasks.UpdateRemoteAssignee(r.Context(), id, params.AssigneeID, params.AssigneeName, params.Version); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.deps.Tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.publishTaskEvent(taskevents.ChangeUpdated, t)
	writeData(w, http.StatusOK, t)
}

func (h *handlers) publishTaskEvent(kind taskevents.ChangeKind, t *task.Task) {
	if h.deps.TaskEvents == nil {
		return
	}
	h.deps.TaskEvents.Publish(taskevents.Event{
		Kind:      kind,
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		Task:      t,
	})
}
