package hiveapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/hive"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

type createAssignmentParams struct {
	TaskID         string `json:"task_id" validate:"required"`
	NodeProjectID  string `json:"node_project_id" validate:"required"`
	LocalProjectID string `json:"local_project_id" validate:"required"`
	NodeID         string `json:"node_id" validate:"required"`
	TaskDetails    string `json:"task_details"`
}

func (h *handlers) createAssignment(w http.ResponseWriter, r *http.Request) {
	var params createAssignmentParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}

	a := &hive.TaskAssignment{
		ID:             uuid.NewString(),
		TaskID:         params.TaskID,
		NodeProjectID:  params.NodeProjectID,
		LocalProjectID: params.LocalProjectID,
		NodeID:         params.NodeID,
		Status:         hive.AssignmentPending,
		TaskDetails:    params.TaskDetails,
	}
	if err := h.deps.Hive.CreateAssignment(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, a)
}

func (h *handlers) getAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Hive.GetAssignment(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

type setAssignmentStatusParams struct {
	Status hive.AssignmentStatus `json:"status" validate:"required,oneof=pending running completed failed"`
}

func (h *handlers) setAssignmentStatus(w http.ResponseWriter, r *http.Request) {
	var params setAssignmentStatusParams
	if err := decodeAndValidate(r, &params); err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Hive.SetAssignmentStatus(r.Context(), pathValue(r, "id"), params.Status); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.deps.Hive.GetAssignment(r.Context(), pathValue(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

type issueTokenParams struct {
	ExecutionProcessID string `json:"execution_process_id"`
}

// issueConnectionToken mints the short-lived JWT a node presents to
// re-establish its sync/stream connection for one assignment (spec
// §6). The assignment must exist and belong to the requesting node.
func (h *handlers) issueConnectionToken(w http.ResponseWriter, r *http.Request) {
	assignmentID := pathValue(r, "id")
	a, err := h.deps.Hive.GetAssignment(r.Context(), assignmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if authNodeID, ok := nodeIDFromContext(r.Context()); ok && authNodeID != a.NodeID {
		writeJSON(w, http.StatusForbidden, envelope{
			Success: false,
			Error:   &vkerrors.Envelope{Kind: "forbidden", Message: "assignment belongs to another node"},
		})
		return
	}

	var params issueTokenParams
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &params); err != nil {
			writeError(w, err)
			return
		}
	}

	token, expiresAt, err := h.deps.Tokens.Issue(a.NodeID, a.NodeID, assignmentID, params.ExecutionProcessID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
	})
}
