package hiveapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/hive"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

type registerNodeParams struct {
	Name string `json:"name" validate:"required"`
}

// registerNode creates a hive_nodes row and issues its first API key in
// one call — a node has nowhere to present a key until it has one, so
// registration and key issuance are not separable steps (spec §6).
func (h *handlers) registerNode(w http.ResponseWriter, r *http.Request) {
	var params registerNodeParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}

	node := &hive.Node{
		ID:     uuid.NewString(),
		Name:   params.Name,
		Status: hive.NodeOnline,
	}
	if err := h.deps.Hive.UpsertNode(r.Context(), node); err != nil {
		writeError(w, err)
		return
	}

	raw, rec, err := h.deps.KeyIssuer.Issue(r.Context(), node.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, map[string]any{
		"node":       node,
		"api_key":    raw,
		"api_key_id": rec.ID,
		"key_prefix": rec.Prefix,
	})
}

func (h *handlers) getNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.deps.Hive.GetNode(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, node)
}

// heartbeat records liveness for the authenticated node (spec §4.M:
// the heartbeat monitor later flips a stale node to offline and fails
// its active assignments). A node may only heartbeat for itself — the
// path id must match the id its API key authenticated as.
func (h *handlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")
	if authNodeID, ok := nodeIDFromContext(r.Context()); ok && authNodeID != id {
		writeJSON(w, http.StatusForbidden, envelope{
			Success: false,
			Error:   &vkerrors.Envelope{Kind: "forbidden", Message: "node may only heartbeat for itself"},
		})
		return
	}
	if err := h.deps.Hive.RecordHeartbeat(r.Context(), id, time.Now().UTC()); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) revokeNodeKey(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.KeyIssuer.Revoke(r.Context(), pathValue(r, "keyId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
