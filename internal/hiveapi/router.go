package hiveapi

import "net/http"

// NewRouter builds the hive's HTTP surface: node registration and
// heartbeats, assignment lifecycle, connection-token issuance, and the
// three sync-ingest endpoints internal/syncpub.Client pushes to. Every
// route except /health requires a node API key (APIKeyAuthMiddleware).
func NewRouter(deps Deps, cfg Config) http.Handler {
	h := &handlers{deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /nodes", h.registerNode)
	mux.HandleFunc("GET /nodes/{id}", h.getNode)
	mux.HandleFunc("POST /nodes/{id}/heartbeat", h.heartbeat)
	mux.HandleFunc("POST /nodes/{nodeId}/keys/{keyId}/revoke", h.revokeNodeKey)

	mux.HandleFunc("POST /assignments", h.createAssignment)
	mux.HandleFunc("GET /assignments/{id}", h.getAssignment)
	mux.HandleFunc("POST /assignments/{id}/status", h.setAssignmentStatus)
	mux.HandleFunc("POST /assignments/{id}/token", h.issueConnectionToken)

	mux.HandleFunc("POST /sync/attempts", h.syncAttempts)
	mux.HandleFunc("POST /sync/executions", h.syncExecutions)
	mux.HandleFunc("POST /sync/logs", h.syncLogs)

	var handler http.Handler = mux
	chain := []Middleware{
		RateLimitMiddleware(RateLimitConfig{RequestsPerMinute: cfg.RateLimitPerMin}),
		APIKeyAuthMiddleware(deps.Verifier),
		LoggingMiddleware(deps.Logger),
		RecoverMiddleware(deps.Logger),
	}
	for _, mw := range chain {
		handler = mw(handler)
	}
	return handler
}
