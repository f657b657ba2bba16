// Package hiveapi is the hive process's HTTP surface (spec §4.L/§6):
// node registration and heartbeats, task assignment lifecycle, and the
// three sync-ingest endpoints a node's internal/syncpub.Client pushes
// to. It mirrors internal/httpapi's conventions (stdlib ServeMux,
// uniform envelope, validator-backed request decoding) since both are
// the same module's HTTP surface wearing a different deployment hat,
// not two unrelated designs.
package hiveapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

type envelope struct {
	Success bool               `json:"success"`
	Data    any                `json:"data,omitempty"`
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

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return vkerrors.ValidationError("malformed request body: " + err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return vkerrors.ValidationError(err.Error())
	}
	return nil
}

func pathValue(r *http.Request, name string) string {
	return r.PathValue(name)
}
