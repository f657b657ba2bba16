package hiveapi

import (
	"net/http"

	"github.com/davidrudduck/vk-swarm-sub003/internal/buildinfo"
)

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"status": "ok",
		"build":  buildinfo.Current(),
	})
}
