package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hazem-soussi-HA/hazoom/internal/memory"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

const (
	defaultSearchLimit    = 10
	defaultKnowledgeLimit = 5
)

// MemoryHandler serves the /api/memory endpoints.
type MemoryHandler struct {
	Store *memory.Store
	Index *memory.Index
}

func (h *MemoryHandler) manager(r *http.Request, userID string) *memory.Manager {
	return memory.NewManager(h.Store, h.Index, resolveUser(r, userID))
}

// StoreMemory handles POST /api/memory/store.
func (h *MemoryHandler) StoreMemory(w http.ResponseWriter, r *http.Request) {
	var req api.StoreMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Key) == "" || strings.TrimSpace(req.Value) == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Key and value are required")
		return
	}

	typ := memory.TypeFact
	if req.MemoryType != "" {
		typ = memory.Type(req.MemoryType)
		if !typ.Valid() {
			writeError(w, http.StatusBadRequest, errInvalidRequest, fmt.Sprintf("Invalid memory type %q", req.MemoryType))
			return
		}
	}
	importance := memory.DefaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	}

	saved, err := h.manager(r, req.UserIdentifier).StoreMemory(r.Context(), memory.Memory{
		Key:         req.Key,
		Value:       req.Value,
		Type:        typ,
		Importance:  importance,
		Tags:        req.Tags,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.MemoryResponse{Status: "success", Memory: saved})
}

// Get handles GET /api/memory/get.
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Key is required")
		return
	}

	m, err := h.manager(r, "").GetMemory(r.Context(), key)
	if errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound, fmt.Sprintf("Memory '%s' not found", key))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.MemoryResponse{Memory: m})
}

// Search handles POST /api/memory/search.
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req api.SearchMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	found, err := h.manager(r, req.UserIdentifier).Search(r.Context(), memory.MemoryQuery{
		Text:  req.Query,
		Type:  memory.Type(req.MemoryType),
		Tags:  req.Tags,
		Limit: req.Limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeMemories(w, found)
}

// List handles GET /api/memory/list.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minImportance := 0
	if v := q.Get("min_importance"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errInvalidRequest, "min_importance must be an integer")
			return
		}
		minImportance = n
	}

	found, err := h.manager(r, "").List(r.Context(), memory.Type(q.Get("memory_type")), minImportance)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeMemories(w, found)
}

// Delete handles DELETE /api/memory/delete.
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req api.KeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Key == "" {
		req.Key = r.URL.Query().Get("key")
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Key is required")
		return
	}

	err := h.manager(r, req.UserIdentifier).Delete(r.Context(), req.Key)
	if errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound, fmt.Sprintf("Memory '%s' not found", req.Key))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "success", Message: fmt.Sprintf("Memory '%s' deleted", req.Key)})
}

// Importance handles POST /api/memory/importance.
func (h *MemoryHandler) Importance(w http.ResponseWriter, r *http.Request) {
	var req api.ImportanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Key) == "" || req.Importance == nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Key and importance are required")
		return
	}

	m, err := h.manager(r, req.UserIdentifier).UpdateImportance(r.Context(), req.Key, *req.Importance)
	if errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound, fmt.Sprintf("Memory '%s' not found", req.Key))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.MemoryResponse{Status: "success", Memory: m})
}

// Stats handles GET /api/memory/stats.
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.manager(r, "").Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Summary handles GET /api/memory/summary.
func (h *MemoryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager(r, "").Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.SummaryResponse{Summary: s})
}

// KnowledgeSearch handles POST /api/memory/knowledge/search.
func (h *MemoryHandler) KnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	var req api.KnowledgeSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultKnowledgeLimit
	}

	found, err := h.Store.SearchKnowledge(r.Context(), req.Query, memory.Category(req.Category), req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	if found == nil {
		found = []memory.Knowledge{}
	}
	writeJSON(w, http.StatusOK, api.KnowledgeResponse{Knowledge: found, Count: len(found)})
}

// KnowledgeAdd handles POST /api/memory/knowledge/add.
func (h *MemoryHandler) KnowledgeAdd(w http.ResponseWriter, r *http.Request) {
	var req api.KnowledgeAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Title and content are required")
		return
	}
	category := memory.Category(req.Category)
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, errInvalidRequest, fmt.Sprintf("Invalid category %q", req.Category))
		return
	}

	k, err := h.Store.AddKnowledge(r.Context(), memory.Knowledge{
		Category: category,
		Title:    req.Title,
		Content:  req.Content,
		Summary:  req.Summary,
		Keywords: req.Keywords,
		Source:   req.Source,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.KnowledgeResponse{Status: "success", Knowledge: []memory.Knowledge{*k}, Count: 1})
}

// GetPreferences handles GET /api/memory/preferences.
func (h *MemoryHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager(r, "").Preferences(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.PreferencesResponse{Preferences: *p})
}

// UpdatePreferences handles POST /api/memory/preferences.
func (h *MemoryHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req api.PreferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}

	p, err := h.manager(r, req.UserIdentifier).UpdatePreferences(r.Context(), req.PreferencesPatch)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.PreferencesResponse{
		Status:      "success",
		Message:     "Preferences updated",
		Preferences: *p,
	})
}

func writeMemories(w http.ResponseWriter, found []memory.Memory) {
	if found == nil {
		found = []memory.Memory{}
	}
	writeJSON(w, http.StatusOK, api.MemoriesResponse{Memories: found, Count: len(found)})
}
