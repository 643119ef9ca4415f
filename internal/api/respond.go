package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MrWong99/agora/internal/observe"
	"github.com/MrWong99/agora/pkg/apperr"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error string `json:"error"`
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are ignored so
// older and newer clients keep working.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("api: invalid JSON body: %w", err)
	}
	return nil
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs err and renders it as {"error": message}. The full error
// chain goes to the log and the request span; the client only sees the
// classified message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(err)

	observe.RecordError(r.Context(), err)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "kind", kind.String(), "err", err)
	} else {
		log.Warn("request rejected upstream", "path", r.URL.Path, "kind", kind.String(), "status", status)
	}

	w.Header().Set(apperr.HeaderKind, kind.String())
	writeJSON(w, status, errorBody{Error: apperr.Message(err)})
}
