package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/hazem-soussi-HA/hazoom/internal/backend"
	"github.com/hazem-soussi-HA/hazoom/internal/llm"
	"github.com/hazem-soussi-HA/hazoom/internal/memory"
	"github.com/hazem-soussi-HA/hazoom/internal/sse"
	"github.com/hazem-soussi-HA/hazoom/internal/sysinfo"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

const defaultHistoryLimit = 50

// ChatHandler serves the /api/llm endpoints.
type ChatHandler struct {
	Backends *backend.Manager
	Store    *memory.Store
	System   backend.SystemSource
}

// Chat handles POST /api/llm/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "No message provided")
		return
	}

	ctx := r.Context()
	sessionID := resolveSession(w, r, req.SessionID)
	userID := resolveUser(r, req.UserIdentifier)

	b, err := h.Backends.Get(ctx, userID, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}

	if req.IntelligenceLevel != "" {
		if level, err := llm.ParseLevel(req.IntelligenceLevel); err == nil {
			if err := b.SetLevel(ctx, level); err != nil {
				log.Printf("Failed to persist level for %s: %v", sessionID, err)
			}
		}
	}

	if err := b.AddToHistory(ctx, "user", req.Message); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	if _, err := b.ExtractMemories(ctx, req.Message); err != nil {
		log.Printf("Memory extraction failed for %s: %v", userID, err)
	}

	if req.Streaming() {
		h.stream(w, r, b, req.Message)
		return
	}

	reply, err := b.Generate(ctx, req.Message)
	if err != nil {
		writeError(w, http.StatusBadGateway, errUpstream, err.Error())
		return
	}
	if err := b.AddToHistory(ctx, "assistant", reply); err != nil {
		log.Printf("Failed to persist reply for %s: %v", sessionID, err)
	}

	writeJSON(w, http.StatusOK, api.ChatResponse{
		Response:          reply,
		SessionID:         sessionID,
		UserIdentifier:    userID,
		IntelligenceLevel: string(b.Level()),
		Provider:          b.LastProvider(),
		SystemStats:       b.SystemStats(ctx),
	})
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, b *backend.Backend, message string) {
	ctx := r.Context()
	sessionID := b.SessionID()

	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	if err := sw.Start(sessionID); err != nil {
		return
	}

	full, err := b.GenerateStream(ctx, message, func(token string) error {
		return sw.Token(sessionID, token)
	})
	if err != nil {
		log.Printf("Stream for %s failed: %v", sessionID, err)
		sw.Error(sessionID, err)
		return
	}

	if err := b.AddToHistory(ctx, "assistant", full); err != nil {
		log.Printf("Failed to persist reply for %s: %v", sessionID, err)
	}
	sw.End(sessionID, full)
}

// SystemInfo handles GET /api/llm/system-info.
func (h *ChatHandler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.System.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.SystemInfoResponse{
		SystemInfo:   info,
		Optimization: sysinfo.Recommend(info),
		Status:       "healthy",
	})
}

// Acceleration handles GET /api/llm/acceleration.
func (h *ChatHandler) Acceleration(w http.ResponseWriter, r *http.Request) {
	b, ok := h.backend(w, r, "", "")
	if !ok {
		return
	}
	info, err := h.System.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.AccelerationResponse{
		Acceleration:      info.Acceleration,
		Optimization:      sysinfo.Recommend(info),
		CurrentBackend:    info.Acceleration.RecommendedBackend,
		IntelligenceLevel: string(b.Level()),
	})
}

// Intelligence handles POST /api/llm/intelligence.
func (h *ChatHandler) Intelligence(w http.ResponseWriter, r *http.Request) {
	var req api.LevelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	level, err := llm.ParseLevel(req.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}

	b, ok := h.backend(w, r, req.UserIdentifier, req.SessionID)
	if !ok {
		return
	}
	if err := b.SetLevel(r.Context(), level); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.LevelResponse{
		Status:            "success",
		IntelligenceLevel: string(level),
		Message:           fmt.Sprintf("Intelligence level set to %s", level.Upper()),
	})
}

// Clear handles POST /api/llm/clear.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req api.SessionRef
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "Invalid JSON body")
		return
	}
	sessionID := resolveSession(w, r, req.SessionID)
	userID := resolveUser(r, req.UserIdentifier)

	if err := h.Backends.Clear(r.Context(), userID, sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "success", Message: "Conversation history cleared"})
}

// Stats handles GET /api/llm/stats.
func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	b, ok := h.backend(w, r, "", "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, api.StatsResponse{
		Stats:              b.Stats(r.Context()),
		ConversationLength: b.Len(),
		IntelligenceLevel:  string(b.Level()),
		SystemHealthy:      true,
	})
}

// Health handles GET /api/llm/health.
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	b, ok := h.backend(w, r, "", "")
	if !ok {
		return
	}
	ctx := r.Context()
	available := h.Backends.Models().Available(ctx)

	provider := b.LastProvider()
	if provider == "" {
		provider = "simulated"
		if available {
			provider = "ollama"
		}
	}

	writeJSON(w, http.StatusOK, api.LLMHealthResponse{
		Status:            "healthy",
		Message:           "HAZoom backend is running",
		IntelligenceLevel: string(b.Level()),
		System:            b.SystemStats(ctx),
		OllamaAvailable:   available,
		OllamaModel:       b.Model(),
		Provider:          provider,
	})
}

// Sessions handles GET /api/llm/sessions.
func (h *ChatHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	refs := h.Backends.List()
	writeJSON(w, http.StatusOK, api.SessionsResponse{Sessions: refs, Count: len(refs)})
}

// History handles GET /api/llm/history.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessionID := resolveSession(w, r, "")
	key := backend.NewKey(resolveUser(r, ""), sessionID)
	msgs, err := h.Store.History(r.Context(), key.UserID, key.SessionID, limit)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	if msgs == nil {
		msgs = []memory.Message{}
	}
	writeJSON(w, http.StatusOK, api.HistoryResponse{SessionID: key.SessionID, Messages: msgs, Count: len(msgs)})
}

// backend resolves the caller's backend from the given payload values, the
// query string and the session cookie.
func (h *ChatHandler) backend(w http.ResponseWriter, r *http.Request, userID, sessionID string) (*backend.Backend, bool) {
	b, err := h.Backends.Get(r.Context(), resolveUser(r, userID), resolveSession(w, r, sessionID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return nil, false
	}
	return b, true
}
