package httpapi

import (
	"net/http"

	"github.com/davidrudduck/vk-swarm-sub003/internal/buildinfo"
)

type healthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, healthResponse{Status: "ok", Build: buildinfo.Current()})
}
