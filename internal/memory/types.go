package memory

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist or is inactive.
var ErrNotFound = errors.New("not found")

// Type classifies a memory.
type Type string

const (
	TypeFact       Type = "fact"
	TypePreference Type = "preference"
	TypeContext    Type = "context"
	TypeKnowledge  Type = "knowledge"
	TypeSystem     Type = "system"
)

// Types lists all memory types in display order.
var Types = []Type{TypeFact, TypePreference, TypeContext, TypeKnowledge, TypeSystem}

// Valid reports whether t is a known memory type.
func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

const (
	DefaultImportance = 5
	MinImportance     = 1
	MaxImportance     = 10
)

// ClampImportance bounds v to 1..10.
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// Memory is a keyed fact about a user.
type Memory struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_identifier"`
	Key          string         `json:"key"`
	Value        string         `json:"value"`
	Type         Type           `json:"memory_type"`
	Importance   int            `json:"importance"`
	Tags         []string       `json:"tags"`
	Description  string         `json:"description,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	AccessCount  int            `json:"access_count"`
	LastAccessed *time.Time     `json:"last_accessed"`
	Active       bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// HasTags reports whether every tag in want is present on m.
func (m *Memory) HasTags(want []string) bool {
	for _, w := range want {
		found := false
		for _, t := range m.Tags {
			if t == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Session is one conversation thread of a user.
type Session struct {
	ID            string    `json:"session_id"`
	UserID        string    `json:"user_identifier"`
	Level         string    `json:"intelligence_level"`
	TotalMessages int       `json:"total_messages"`
	Active        bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	LastActive    time.Time `json:"last_active"`
}

// Message is a persisted conversation turn.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Category classifies a knowledge base entry.
type Category string

const (
	CategorySystem    Category = "system"
	CategoryAPI       Category = "api"
	CategoryTutorial  Category = "tutorial"
	CategoryFAQ       Category = "faq"
	CategoryTechnical Category = "technical"
	CategoryQuantum   Category = "quantum"
	CategoryGeneral   Category = "general"
)

// Categories lists the knowledge categories.
var Categories = []Category{
	CategorySystem, CategoryAPI, CategoryTutorial, CategoryFAQ,
	CategoryTechnical, CategoryQuantum, CategoryGeneral,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Knowledge is a shared knowledge base entry.
type Knowledge struct {
	ID             string    `json:"id"`
	Category       Category  `json:"category"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Summary        string    `json:"summary"`
	Keywords       []string  `json:"keywords"`
	Source         string    `json:"source,omitempty"`
	RelevanceScore float64   `json:"relevance_score"`
	AccessCount    int       `json:"access_count"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ResponseStyle is how the user likes replies to be written.
type ResponseStyle string

const (
	StyleConcise   ResponseStyle = "concise"
	StyleDetailed  ResponseStyle = "detailed"
	StyleTechnical ResponseStyle = "technical"
	StyleCasual    ResponseStyle = "casual"
	StyleQuantum   ResponseStyle = "quantum"
)

// Valid reports whether s is a known style.
func (s ResponseStyle) Valid() bool {
	switch s {
	case StyleConcise, StyleDetailed, StyleTechnical, StyleCasual, StyleQuantum:
		return true
	}
	return false
}

// Preferences holds per-user settings.
type Preferences struct {
	UserID               string         `json:"user_identifier"`
	DefaultLevel         string         `json:"default_intelligence_level"`
	ResponseStyle        ResponseStyle  `json:"response_style"`
	SystemInfoSettings   map[string]any `json:"system_info_settings"`
	NotificationSettings map[string]any `json:"notification_settings"`
	UISettings           map[string]any `json:"ui_settings"`
	PrivacySettings      map[string]any `json:"privacy_settings"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// DefaultPreferences returns the settings a new user starts with.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:               userID,
		DefaultLevel:         "super",
		ResponseStyle:        StyleDetailed,
		SystemInfoSettings:   map[string]any{},
		NotificationSettings: map[string]any{},
		UISettings:           map[string]any{},
		PrivacySettings:      map[string]any{},
	}
}

// PreferencesPatch is a partial update. Nil fields are left unchanged.
type PreferencesPatch struct {
	DefaultLevel         *string        `json:"default_intelligence_level,omitempty"`
	ResponseStyle        *string        `json:"response_style,omitempty"`
	SystemInfoSettings   map[string]any `json:"system_info_settings,omitempty"`
	NotificationSettings map[string]any `json:"notification_settings,omitempty"`
	UISettings           map[string]any `json:"ui_settings,omitempty"`
	PrivacySettings      map[string]any `json:"privacy_settings,omitempty"`
}

// AccessedMemory is an entry of Stats.MostAccessed.
type AccessedMemory struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	AccessCount int    `json:"access_count"`
}

// Stats summarises a user's stored memory.
type Stats struct {
	TotalMemories int              `json:"total_memories"`
	ByType        map[Type]int     `json:"by_type"`
	TotalSessions int              `json:"total_sessions"`
	TotalMessages int              `json:"total_messages"`
	MostAccessed  []AccessedMemory `json:"most_accessed"`
}

// SearchResult is a memory with scores from the semantic index.
type SearchResult struct {
	Memory        Memory  `json:"memory"`
	SemanticScore float32 `json:"semantic_score"`
	KeywordScore  float32 `json:"keyword_score"`
	CombinedScore float32 `json:"combined_score"`
}
