package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

// Error types carried in api.ErrorDetail.Type.
const (
	errInvalidRequest = "invalid_request"
	errNotFound       = "not_found"
	errConflict       = "conflict"
	errUpstream       = "upstream_error"
	errInternal       = "internal_error"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, api.ErrorResponse{
		Error: api.ErrorDetail{
			Message: message,
			Type:    errType,
			Code:    http.StatusText(status),
		},
	})
}

// decodeJSON reads an optional JSON body into v. An empty body is not an error.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
