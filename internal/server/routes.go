package server

import (
	"net/http"

	"github.com/hazem-soussi-HA/hazoom/internal/hub"
	"github.com/hazem-soussi-HA/hazoom/internal/server/handlers"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health
	mux.HandleFunc("GET /health", handlers.Health)

	// Chat
	chat := &handlers.ChatHandler{
		Backends: s.deps.Backends,
		Store:    s.deps.Store,
		System:   s.deps.System,
	}
	mux.HandleFunc("POST /api/llm/chat", chat.Chat)
	mux.HandleFunc("GET /api/llm/system-info", chat.SystemInfo)
	mux.HandleFunc("GET /api/llm/acceleration", chat.Acceleration)
	mux.HandleFunc("POST /api/llm/intelligence", chat.Intelligence)
	mux.HandleFunc("POST /api/llm/clear", chat.Clear)
	mux.HandleFunc("GET /api/llm/stats", chat.Stats)
	mux.HandleFunc("GET /api/llm/health", chat.Health)
	mux.HandleFunc("GET /api/llm/sessions", chat.Sessions)
	mux.HandleFunc("GET /api/llm/history", chat.History)

	// Models
	models := &handlers.ModelsHandler{Backends: s.deps.Backends}
	mux.HandleFunc("GET /api/models", models.List)
	mux.HandleFunc("POST /api/models/set", models.Set)
	mux.HandleFunc("POST /api/models/pull", models.Pull)
	mux.HandleFunc("DELETE /api/models/delete", models.Delete)
	mux.HandleFunc("GET /api/models/info", models.Info)
	mux.HandleFunc("GET /api/models/status", models.Status)

	// Memory and knowledge
	mem := &handlers.MemoryHandler{Store: s.deps.Store, Index: s.deps.Index}
	mux.HandleFunc("POST /api/memory/store", mem.StoreMemory)
	mux.HandleFunc("GET /api/memory/get", mem.Get)
	mux.HandleFunc("POST /api/memory/search", mem.Search)
	mux.HandleFunc("GET /api/memory/list", mem.List)
	mux.HandleFunc("DELETE /api/memory/delete", mem.Delete)
	mux.HandleFunc("POST /api/memory/importance", mem.Importance)
	mux.HandleFunc("GET /api/memory/stats", mem.Stats)
	mux.HandleFunc("GET /api/memory/summary", mem.Summary)
	mux.HandleFunc("POST /api/memory/knowledge/search", mem.KnowledgeSearch)
	mux.HandleFunc("POST /api/memory/knowledge/add", mem.KnowledgeAdd)
	mux.HandleFunc("GET /api/memory/preferences", mem.GetPreferences)
	mux.HandleFunc("POST /api/memory/preferences", mem.UpdatePreferences)

	// Websocket chat rooms
	mux.Handle("GET /ws", hub.NewHandler(s.hub, s.deps.Backends, hub.Config{
		APIKey:               s.cfg.APIKey,
		AllowedOrigins:       s.cfg.AllowedOrigins,
		MessagesPerMinute:    s.cfg.RateLimit.MessagesPerMinute,
		ConnectionsPerMinute: s.cfg.RateLimit.ConnectionsPerMinute,
	}))
}
