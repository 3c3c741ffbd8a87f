package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleetops/internal/engine"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses:
// validation failures are 400, missing entities 404, authorization 403.
func writeEngineError(w http.ResponseWriter, err error, instance string) {
	var ve *engine.ValidationError
	var nfe *engine.NotFoundError
	var fe *engine.ForbiddenError
	switch {
	case errors.As(err, &ve):
		writeProblem(w, http.StatusBadRequest, "Validation failed", ve.Msg, instance)
	case errors.As(err, &nfe):
		writeProblem(w, http.StatusNotFound, "Not Found", nfe.Msg, instance)
	case errors.As(err, &fe):
		writeProblem(w, http.StatusForbidden, "Forbidden", fe.Msg, instance)
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), instance)
	}
}
