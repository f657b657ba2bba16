package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/davidrudduck/vk-swarm-sub003/internal/diff"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pingPong runs the keep-alive loop spec §6 requires on every long-lived WS:
// a server ping on pingInterval, a read deadline extended by pongTimeout on
// every pong, and the connection closed once the context ends.
func pingPong(conn *websocket.Conn, pingInterval, pongTimeout time.Duration, done <-chan struct{}) {
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// drainReads discards inbound frames so the gorilla/websocket read loop keeps
// delivering control frames (pong) to the handlers registered above, since
// this surface is server-push only.
func drainReads(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// taskStreamWS handles GET /tasks/stream/ws?project_id=X: a long-lived feed
// of task state deltas for one project (spec §6).
func (h *handlers) taskStreamWS(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := h.deps.TaskEvents.Subscribe(projectID)
	defer unsubscribe()

	done := make(chan struct{})
	go drainReads(conn, done)
	go pingPong(conn, h.cfg().WSPingIntervalList, h.cfg().WSPongTimeoutList, done)

	for {
		select {
		case <-done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// attemptDiffWS handles GET /attempts/{id}/diff/ws: a WS feed of the
// attempt's current changed-files diff against its base branch, refreshed
// on an interval since git has no native file-change notification here.
func (h *handlers) attemptDiffWS(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Attempts.Get(r.Context(), pathValue(r, "id"))
	if err != nil {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go drainReads(conn, done)
	go pingPong(conn, h.cfg().WSPingIntervalExec, h.cfg().WSPongTimeoutExec, done)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	gen := h.deps.DiffGenerator
	if gen == nil {
		gen = diff.NewGenerator(3, false)
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			changes, err := h.deps.Worktrees.ChangedFiles(r.Context(), a.WorktreePath, a.BaseBranch)
			if err != nil {
				continue
			}
			results := make([]map[string]any, 0, len(changes))
			for _, c := range changes {
				oldContent, _, _ := h.deps.Worktrees.FileAt(r.Context(), a.WorktreePath, a.BaseBranch, c.Path)
				newContent, _ := h.deps.Worktrees.ReadFile(a.WorktreePath, c.Path)
				result, genErr := gen.GenerateUnified(oldContent, string(newContent), c.Path)
				if genErr != nil {
					continue
				}
				results = append(results, map[string]any{
					"path":   c.Path,
					"status": c.Status,
					"diff":   result,
				})
			}
			if err := conn.WriteJSON(map[string]any{"changes": results}); err != nil {
				return
			}
		}
	}
}

func (h *handlers) cfg() Config {
	return h.routerCfg
}
