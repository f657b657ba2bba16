package httpapi

import (
	"net/http"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/approval"
)

// respondApproval handles POST /approvals/{id}/respond, resolving a pending
// interactive tool-approval or question/answer request (spec §4.J).
func (h *handlers) respondApproval(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")
	var params approval.RespondParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.ApprovalService.Respond(id, params.Status, params.Answers); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
