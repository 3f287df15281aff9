package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hazem-soussi-HA/hazoom/internal/backend"
	"github.com/hazem-soussi-HA/hazoom/internal/ollama"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

// ModelsHandler serves the /api/models endpoints.
type ModelsHandler struct {
	Backends *backend.Manager
}

func (h *ModelsHandler) current(w http.ResponseWriter, r *http.Request, userID, sessionID string) (*backend.Backend, bool) {
	b, err := h.Backends.Get(r.Context(), resolveUser(r, userID), resolveSession(w, r, sessionID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return nil, false
	}
	return b, true
}

// List handles GET /api/models.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	b, ok := h.current(w, r, "", "")
	if !ok {
		return
	}

	entries, err := h.Backends.Models().Entries(r.Context(), b.Model())
	available := err == nil
	if entries == nil {
		entries = []api.ModelEntry{}
	}
	writeJSON(w, http.StatusOK, api.ModelsResponse{
		Status:          "success",
		Models:          entries,
		CurrentModel:    b.Model(),
		OllamaAvailable: available,
		Count:           len(entries),
	})
}

// Set handles POST /api/models/set.
func (h *ModelsHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req api.ModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Model)
	if name == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Model name is required")
		return
	}

	b, ok := h.current(w, r, req.UserIdentifier, req.SessionID)
	if !ok {
		return
	}
	found, err := b.SetModel(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusBadRequest, errUpstream, fmt.Sprintf("Failed to set model: %v", err))
		return
	}
	if !found {
		writeError(w, http.StatusBadRequest, errNotFound, fmt.Sprintf("Model '%s' not found", name))
		return
	}
	writeJSON(w, http.StatusOK, api.ModelSetResponse{
		Status:       "success",
		Message:      fmt.Sprintf("Switched to model %s", name),
		CurrentModel: b.Model(),
	})
}

// Pull handles POST /api/models/pull. The pull runs in the background; its
// progress is reported by /api/models/status.
func (h *ModelsHandler) Pull(w http.ResponseWriter, r *http.Request) {
	var req api.ModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Model)
	if name == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Model name is required")
		return
	}

	if err := h.Backends.Models().Pull(r.Context(), name); err != nil {
		if errors.Is(err, backend.ErrPullRunning) {
			writeError(w, http.StatusConflict, errConflict, fmt.Sprintf("Model %s is already being pulled", name))
			return
		}
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, api.StatusResponse{
		Status:  "started",
		Message: fmt.Sprintf("Pulling model %s", name),
	})
}

// Delete handles DELETE /api/models/delete. The model comes from the query
// string or the body.
func (h *ModelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("model"))
	if name == "" {
		var req api.ModelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
			return
		}
		name = strings.TrimSpace(req.Model)
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Model name is required")
		return
	}

	if err := h.Backends.Models().Delete(r.Context(), name); err != nil {
		writeError(w, http.StatusBadRequest, errUpstream, fmt.Sprintf("Failed to delete model %s: %v", name, err))
		return
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Model %s deleted", name),
	})
}

// Info handles GET /api/models/info.
func (h *ModelsHandler) Info(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("model"))
	if name == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Model name is required")
		return
	}

	info, err := h.Backends.Models().Show(r.Context(), name)
	switch {
	case ollama.IsModelNotFound(err):
		writeError(w, http.StatusNotFound, errNotFound, fmt.Sprintf("Model '%s' not found", name))
		return
	case ollama.IsTimeout(err):
		writeError(w, http.StatusGatewayTimeout, errUpstream, "Ollama did not answer in time")
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, errUpstream, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.ModelInfoResponse{Status: "success", Model: name, Info: info})
}

// Status handles GET /api/models/status.
func (h *ModelsHandler) Status(w http.ResponseWriter, r *http.Request) {
	b, ok := h.current(w, r, "", "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, api.OllamaStatusResponse{
		Status:       "success",
		OllamaStatus: h.Backends.Models().Status(r.Context(), b.Model()),
	})
}
