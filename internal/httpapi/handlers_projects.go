package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/project"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// createProjectParams is the body of POST /projects.
type createProjectParams struct {
	Name                string `json:"name" validate:"required"`
	RepoPath            string `json:"repo_path" validate:"required"`
	SetupScript         string `json:"setup_script,omitempty"`
	DevScript           string `json:"dev_script,omitempty"`
	CleanupScript       string `json:"cleanup_script,omitempty"`
	ParallelSetupScript bool   `json:"parallel_setup_script,omitempty"`
}

func (h *handlers) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.deps.Projects.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, projects)
}

func (h *handlers) createProject(w http.ResponseWriter, r *http.Request) {
	var params createProjectParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}
	p := &project.Project{
		ID:                  uuid.NewString(),
		Name:                params.Name,
		RepoPath:            params.RepoPath,
		SetupScript:         params.SetupScript,
		DevScript:           params.DevScript,
		CleanupScript:       params.CleanupScript,
		ParallelSetupScript: params.ParallelSetupScript,
	}
	if err := h.deps.Projects.Create(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

func (h *handlers) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Projects.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *handlers) updateProject(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")
	existing, err := h.deps.Projects.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var params createProjectParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}
	existing.Name = params.Name
	existing.RepoPath = params.RepoPath
	existing.SetupScript = params.SetupScript
	existing.DevScript = params.DevScript
	existing.CleanupScript = params.CleanupScript
	existing.ParallelSetupScript = params.ParallelSetupScript
	if err := h.deps.Projects.Update(r.Context(), existing); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, existing)
}

func (h *handlers) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Projects.Delete(r.Context(), pathValue(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) projectBranches(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Projects.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	branches, err := h.deps.Worktrees.Branches(r.Context(), p.RepoPath)
	if err != nil {
		writeError(w, vkerrors.UnavailableError(err.Error()))
		return
	}
	writeData(w, http.StatusOK, branches)
}

func (h *handlers) projectFiles(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Projects.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	sub := r.URL.Query().Get("path")
	if path := r.URL.Query().Get("read"); path != "" {
		content, err := h.deps.Worktrees.ReadFile(p.RepoPath, path)
		if err != nil {
			writeError(w, vkerrors.NotFoundError("file "+path))
			return
		}
		writeData(w, http.StatusOK, map[string]string{"path": path, "content": string(content)})
		return
	}
	entries, err := h.deps.Worktrees.ListFiles(p.RepoPath, sub)
	if err != nil {
		writeError(w, vkerrors.NotFoundError("path "+sub))
		return
	}
	writeData(w, http.StatusOK, entries)
}

// setProjectGitHub handles POST /projects/{id}/github. Enabling triggers an
// immediate background sync (spec §6); the counts are not refreshed on
// any schedule.
func (h *handlers) setProjectGitHub(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")
	var settings project.GitHubSettings
	if err := decodeAndValidate(r, &settings); err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Projects.SetGitHubSettings(r.Context(), id, settings); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.deps.Projects.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if settings.Enabled && h.deps.GitHub != nil && p.GitHubOwner != "" && p.GitHubRepo != "" {
		go func() {
			if syncErr := h.deps.GitHub.SyncOnce(context.Background(), id, p.GitHubOwner, p.GitHubRepo); syncErr != nil && h.deps.Logger != nil {
				h.deps.Logger.Warn("github sync failed", "project_id", id, "error", syncErr)
			}
		}()
	}
	writeData(w, http.StatusOK, p)
}
