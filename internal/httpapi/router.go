package httpapi

import (
	"net/http"
)

// NewRouter builds the node's HTTP surface: one http.ServeMux routed with
// Go 1.22+ method-and-path patterns, wrapped in the middleware chain
// composed innermost (Compression) to outermost (Recover) — mirroring this
// codebase's existing server layering.
func NewRouter(deps Deps, cfg Config) http.Handler {
	h := &handlers{deps: deps, routerCfg: cfg}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("GET /projects", h.listProjects)
	mux.HandleFunc("POST /projects", h.createProject)
	mux.HandleFunc("GET /projects/{id}", h.getProject)
	mux.HandleFunc("PUT /projects/{id}", h.updateProject)
	mux.HandleFunc("DELETE /projects/{id}", h.deleteProject)
	mux.HandleFunc("GET /projects/{id}/branches", h.projectBranches)
	mux.HandleFunc("GET /projects/{id}/files", h.projectFiles)
	mux.HandleFunc("POST /projects/{id}/github", h.setProjectGitHub)

	mux.HandleFunc("GET /tasks", h.listTasks)
	mux.HandleFunc("POST /tasks/create-and-start", h.createAndStartTask)
	mux.HandleFunc("POST /tasks/{id}/archive", h.archiveTask)
	mux.HandleFunc("POST /tasks/{id}/unarchive", h.unarchiveTask)
	mux.HandleFunc("POST /tasks/{id}/assign", h.assignTask)
	mux.HandleFunc("GET /tasks/stream/ws", h.taskStreamWS)

	mux.HandleFunc("GET /attempts/{id}", h.getAttempt)
	mux.HandleFunc("POST /attempts/{id}/stop", h.stopAttempt)
	mux.HandleFunc("POST /attempts/{id}/follow-up", h.followUpAttempt)
	mux.HandleFunc("POST /attempts/{id}/merge", h.mergeAttempt)
	mux.HandleFunc("POST /attempts/{id}/rebase", h.rebaseAttempt)
	mux.HandleFunc("POST /attempts/{id}/push", h.pushAttempt)
	mux.HandleFunc("POST /attempts/{id}/stash", h.stashAttempt)
	mux.HandleFunc("POST /attempts/{id}/stash/pop", h.popStashAttempt)
	mux.HandleFunc("GET /attempts/{id}/diff/ws", h.attemptDiffWS)
	mux.HandleFunc("GET /attempts/{id}/executions/{execId}/stream", h.executionStream)

	mux.HandleFunc("POST /approvals/{id}/respond", h.respondApproval)

	var handler http.Handler = mux
	chain := []Middleware{
		CompressionMiddleware(),
		CORSMiddleware(cfg.AllowedOrigins),
		RequestTimeoutMiddleware(cfg.NonStreamTimeout),
		RateLimitMiddleware(RateLimitConfig{RequestsPerMinute: cfg.RateLimitPerMin}),
		LoggingMiddleware(deps.Logger),
		RecoverMiddleware(deps.Logger),
	}
	for _, mw := range chain {
		handler = mw(handler)
	}
	return handler
}
