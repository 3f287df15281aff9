// Package api holds the JSON request and response types of the HAZoom HTTP API.
package api

import (
	"time"

	"github.com/hazem-soussi-HA/hazoom/internal/memory"
	"github.com/hazem-soussi-HA/hazoom/internal/sysinfo"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// StatusResponse is a generic acknowledgement.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Chat

// ChatRequest is the body of POST /api/llm/chat. Stream defaults to true.
type ChatRequest struct {
	Message           string `json:"message"`
	Stream            *bool  `json:"stream,omitempty"`
	IntelligenceLevel string `json:"intelligence_level,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
	UserIdentifier    string `json:"user_identifier,omitempty"`
}

// Streaming reports whether the client asked for an SSE reply.
func (r *ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// ChatResponse is the non-streaming reply.
type ChatResponse struct {
	Response          string      `json:"response"`
	SessionID         string      `json:"session_id"`
	UserIdentifier    string      `json:"user_identifier"`
	IntelligenceLevel string      `json:"intelligence_level"`
	Provider          string      `json:"provider,omitempty"`
	SystemStats       SystemStats `json:"system_stats"`
}

// SystemStats is the short host summary attached to chat replies.
type SystemStats struct {
	CPUCores          int     `json:"cpu_cores"`
	MemoryGB          float64 `json:"memory_gb"`
	GPUAvailable      bool    `json:"gpu_available"`
	Acceleration      string  `json:"acceleration"`
	IntelligenceLevel string  `json:"intelligence_level"`
}

// LevelRequest is the body of POST /api/llm/intelligence.
type LevelRequest struct {
	Level          string `json:"level"`
	SessionID      string `json:"session_id,omitempty"`
	UserIdentifier string `json:"user_identifier,omitempty"`
}

// LevelResponse confirms a level change.
type LevelResponse struct {
	Status            string `json:"status"`
	IntelligenceLevel string `json:"intelligence_level"`
	Message           string `json:"message"`
}

// SystemInfoResponse is returned by GET /api/llm/system-info.
type SystemInfoResponse struct {
	SystemInfo   *sysinfo.Info          `json:"system_info"`
	Optimization sysinfo.Recommendation `json:"optimization"`
	Status       string                 `json:"status"`
}

// AccelerationResponse is returned by GET /api/llm/acceleration.
type AccelerationResponse struct {
	Acceleration      sysinfo.Acceleration   `json:"acceleration"`
	Optimization      sysinfo.Recommendation `json:"optimization"`
	CurrentBackend    string                 `json:"current_backend"`
	IntelligenceLevel string                 `json:"intelligence_level"`
}

// BackendStats describes one chat backend.
type BackendStats struct {
	IntelligenceLevel   string `json:"intelligence_level"`
	CurrentModel        string `json:"current_model"`
	ConversationLength  int    `json:"conversation_length"`
	ContextTokens       int    `json:"context_tokens"`
	AvailableTokens     int    `json:"available_tokens"`
	AccelerationBackend string `json:"acceleration_backend"`
	LastProvider        string `json:"last_provider,omitempty"`
	MemoryCount         int    `json:"memory_count"`
}

// StatsResponse is returned by GET /api/llm/stats.
type StatsResponse struct {
	Stats              BackendStats `json:"stats"`
	ConversationLength int          `json:"conversation_length"`
	IntelligenceLevel  string       `json:"intelligence_level"`
	SystemHealthy      bool         `json:"system_healthy"`
}

// LLMHealthResponse is returned by GET /api/llm/health.
type LLMHealthResponse struct {
	Status            string      `json:"status"`
	Message           string      `json:"message"`
	IntelligenceLevel string      `json:"intelligence_level"`
	System            SystemStats `json:"system"`
	OllamaAvailable   bool        `json:"ollama_available"`
	OllamaModel       string      `json:"ollama_model"`
	Provider          string      `json:"provider"`
}

// SessionRef identifies a registered chat backend.
type SessionRef struct {
	UserIdentifier string `json:"user_identifier"`
	SessionID      string `json:"session_id"`
}

// SessionsResponse is returned by GET /api/llm/sessions.
type SessionsResponse struct {
	Sessions []SessionRef `json:"sessions"`
	Count    int          `json:"count"`
}

// HistoryResponse is returned by GET /api/llm/history.
type HistoryResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []memory.Message `json:"messages"`
	Count     int              `json:"count"`
}

// Models

// ModelEntry describes an installed model.
type ModelEntry struct {
	Name              string    `json:"name"`
	Size              int64     `json:"size"`
	SizeGB            float64   `json:"size_gb"`
	ModifiedAt        time.Time `json:"modified_at"`
	Family            string    `json:"family,omitempty"`
	ParameterSize     string    `json:"parameter_size,omitempty"`
	QuantizationLevel string    `json:"quantization_level,omitempty"`
	IsCurrent         bool      `json:"is_current"`
}

// ModelsResponse is returned by GET /api/models.
type ModelsResponse struct {
	Status          string       `json:"status"`
	Models          []ModelEntry `json:"models"`
	CurrentModel    string       `json:"current_model"`
	OllamaAvailable bool         `json:"ollama_available"`
	Count           int          `json:"count"`
}

// ModelRequest names a model. Used by set, pull and delete.
type ModelRequest struct {
	Model          string `json:"model"`
	SessionID      string `json:"session_id,omitempty"`
	UserIdentifier string `json:"user_identifier,omitempty"`
}

// ModelSetResponse confirms a model switch.
type ModelSetResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	CurrentModel string `json:"current_model"`
}

// ModelInfoResponse is returned by GET /api/models/info.
type ModelInfoResponse struct {
	Status string         `json:"status"`
	Model  string         `json:"model"`
	Info   map[string]any `json:"info"`
}

// PullStatus tracks one background pull.
type PullStatus struct {
	Model      string     `json:"model"`
	Status     string     `json:"status"`
	Completed  int64      `json:"completed"`
	Total      int64      `json:"total"`
	Percent    float64    `json:"percent"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// OllamaStatus describes the daemon as seen by this server.
type OllamaStatus struct {
	OllamaAvailable bool         `json:"ollama_available"`
	CurrentModel    string       `json:"current_model"`
	BaseURL         string       `json:"base_url"`
	TotalModels     int          `json:"total_models"`
	Models          []string     `json:"models"`
	TotalSizeGB     float64      `json:"total_size_gb"`
	Pulls           []PullStatus `json:"pulls"`
}

// OllamaStatusResponse is returned by GET /api/models/status.
type OllamaStatusResponse struct {
	Status       string       `json:"status"`
	OllamaStatus OllamaStatus `json:"ollama_status"`
}

// Memory

// StoreMemoryRequest is the body of POST /api/memory/store.
type StoreMemoryRequest struct {
	UserIdentifier string         `json:"user_identifier,omitempty"`
	Key            string         `json:"key"`
	Value          string         `json:"value"`
	MemoryType     string         `json:"memory_type,omitempty"`
	Importance     *int           `json:"importance,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Description    string         `json:"description,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SearchMemoryRequest is the body of POST /api/memory/search.
type SearchMemoryRequest struct {
	UserIdentifier string   `json:"user_identifier,omitempty"`
	Query          string   `json:"query"`
	MemoryType     string   `json:"memory_type,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Limit          int      `json:"limit,omitempty"`
}

// KeyRequest names a memory. Used by delete.
type KeyRequest struct {
	UserIdentifier string `json:"user_identifier,omitempty"`
	Key            string `json:"key"`
}

// ImportanceRequest is the body of POST /api/memory/importance.
type ImportanceRequest struct {
	UserIdentifier string `json:"user_identifier,omitempty"`
	Key            string `json:"key"`
	Importance     *int   `json:"importance"`
}

// MemoryResponse wraps a single memory.
type MemoryResponse struct {
	Status string         `json:"status,omitempty"`
	Memory *memory.Memory `json:"memory"`
}

// MemoriesResponse wraps a memory list.
type MemoriesResponse struct {
	Memories []memory.Memory `json:"memories"`
	Count    int             `json:"count"`
}

// SummaryResponse is returned by GET /api/memory/summary.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// KnowledgeSearchRequest is the body of POST /api/memory/knowledge/search.
type KnowledgeSearchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// KnowledgeAddRequest is the body of POST /api/memory/knowledge/add.
type KnowledgeAddRequest struct {
	Category string   `json:"category,omitempty"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Summary  string   `json:"summary,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// KnowledgeResponse wraps knowledge entries.
type KnowledgeResponse struct {
	Status    string             `json:"status,omitempty"`
	Knowledge []memory.Knowledge `json:"knowledge"`
	Count     int                `json:"count"`
}

// PreferencesRequest is the body of POST /api/memory/preferences.
type PreferencesRequest struct {
	UserIdentifier string `json:"user_identifier,omitempty"`
	memory.PreferencesPatch
}

// PreferencesResponse wraps a user's preferences.
type PreferencesResponse struct {
	Status      string             `json:"status,omitempty"`
	Message     string             `json:"message,omitempty"`
	Preferences memory.Preferences `json:"preferences"`
}
