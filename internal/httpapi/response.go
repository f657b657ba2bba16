// Package httpapi is the node's HTTP/WS surface (spec §6): a thin CRUD
// layer around the domain stores, fronted by the engine for task-attempt
// lifecycle operations. Routing follows the Go 1.22+ http.ServeMux
// method-pattern idiom with a linear middleware chain, matching this
// codebase's existing server conventions rather than a third-party web
// framework.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// envelope is the uniform response body from spec §7: {success, data?, error?}.
type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   *vkerrors.Envelope `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status, env := vkerrors.ToEnvelope(err)
	writeJSON(w, status, envelope{Success: false, Error: &env})
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeAndValidate JSON-decodes r.Body into dst and runs struct-tag
// validation (go-playground/validator), returning a vkerrors.ValidationError
// on either failure so handlers can funnel it straight into writeError.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return vkerrors.ValidationError("malformed request body: " + err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return vkerrors.ValidationError(err.Error())
	}
	return nil
}
