package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/flowmatik/backend/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps the error taxonomy to HTTP statuses: invalid argument 400,
// not found 404, unavailable 503, upstream failure 502, anything else 500.
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case core.IsUpstream(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("[SERVER] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody parses a JSON request body. Unknown fields are ignored.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}
