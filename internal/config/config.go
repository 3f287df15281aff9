package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the HAZoom server configuration.
type Config struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	BasePath string `yaml:"base_path" toml:"base_path"` // optional URL prefix, e.g. "/quantum-goose-app"

	OllamaURL     string        `yaml:"ollama_url" toml:"ollama_url"`
	OllamaTimeout time.Duration `yaml:"ollama_timeout" toml:"ollama_timeout"`

	DefaultLevel    string            `yaml:"default_level" toml:"default_level"`
	LevelModels     map[string]string `yaml:"level_models" toml:"level_models"`
	PreferredModels []string          `yaml:"preferred_models" toml:"preferred_models"`
	FallbackModel   string            `yaml:"fallback_model" toml:"fallback_model"`
	EmbeddingModel  string            `yaml:"embedding_model" toml:"embedding_model"`

	OpenAI    OpenAIConfig    `yaml:"openai" toml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" toml:"anthropic"`

	RedisURL    string `yaml:"redis_url" toml:"redis_url"`
	CachePrefix string `yaml:"cache_prefix" toml:"cache_prefix"`

	DataDir        string `yaml:"data_dir" toml:"data_dir"`
	DatabasePath   string `yaml:"database_path" toml:"database_path"`
	VectorDir      string `yaml:"vector_dir" toml:"vector_dir"`
	SemanticSearch bool   `yaml:"semantic_search" toml:"semantic_search"`

	AllowedOrigins []string        `yaml:"allowed_origins" toml:"allowed_origins"`
	APIKey         string          `yaml:"api_key" toml:"api_key"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`

	StreamHistory    int           `yaml:"stream_history" toml:"stream_history"`
	SyncHistory      int           `yaml:"sync_history" toml:"sync_history"`
	CtxSize          int           `yaml:"ctx_size" toml:"ctx_size"`
	ResponseBudget   int           `yaml:"response_budget" toml:"response_budget"`
	SessionRetention time.Duration `yaml:"session_retention" toml:"session_retention"`
	TypingDelay      time.Duration `yaml:"typing_delay" toml:"typing_delay"`
}

// OpenAIConfig configures the OpenAI-compatible fallback provider.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
}

// AnthropicConfig configures the Anthropic fallback provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
	Model  string `yaml:"model" toml:"model"`
}

// RateLimitConfig holds per-minute limits.
type RateLimitConfig struct {
	RequestsPerMinute    int `yaml:"requests_per_minute" toml:"requests_per_minute"`
	MessagesPerMinute    int `yaml:"messages_per_minute" toml:"messages_per_minute"`
	ConnectionsPerMinute int `yaml:"connections_per_minute" toml:"connections_per_minute"`
}

var validLevels = []string{"nano", "standard", "super", "quantum"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Host:          "0.0.0.0",
		Port:          8080,
		OllamaURL:     "http://127.0.0.1:11434",
		OllamaTimeout: 30 * time.Second,
		DefaultLevel:  "super",
		LevelModels: map[string]string{
			"nano":     "phi",
			"standard": "llama2",
			"super":    "llama2",
			"quantum":  "llama2",
		},
		PreferredModels: []string{"llama2:latest", "glm-4.6:cloud", "minimax-m2:cloud"},
		FallbackModel:   "glm-4.6:cloud",
		EmbeddingModel:  "nomic-embed-text",
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-3-5-haiku-latest",
		},
		CachePrefix:    "hazoom",
		DataDir:        dataDir,
		DatabasePath:   filepath.Join(dataDir, "hazoom.db"),
		VectorDir:      filepath.Join(dataDir, "vectors"),
		SemanticSearch: true,
		AllowedOrigins: []string{"http://localhost:9000", "http://127.0.0.1:9000"},
		RateLimit: RateLimitConfig{
			RequestsPerMinute:    120,
			MessagesPerMinute:    30,
			ConnectionsPerMinute: 10,
		},
		StreamHistory:    10,
		SyncHistory:      5,
		CtxSize:          4096,
		ResponseBudget:   512,
		SessionRetention: 30 * 24 * time.Hour,
		TypingDelay:      50 * time.Millisecond,
	}
}

// Load reads a YAML or TOML file over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	// A data_dir set in the file moves the derived paths with it unless
	// those were set explicitly too.
	if cfg.DataDir != DataDir() {
		def := DefaultConfig()
		if cfg.DatabasePath == def.DatabasePath {
			cfg.DatabasePath = filepath.Join(cfg.DataDir, "hazoom.db")
		}
		if cfg.VectorDir == def.VectorDir {
			cfg.VectorDir = filepath.Join(cfg.DataDir, "vectors")
		}
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HAZOOM_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("HAZOOM_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("HAZOOM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("HAZOOM_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("HAZOOM_OLLAMA_URL"); v != "" {
		c.OllamaURL = v
	}
	if v := os.Getenv("HAZOOM_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("HAZOOM_OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("HAZOOM_OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("HAZOOM_ANTHROPIC_API_KEY"); v != "" {
		c.Anthropic.APIKey = v
	}
	if v := os.Getenv("HAZOOM_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("HAZOOM_DATA_DIR"); v != "" {
		c.DataDir = v
		c.DatabasePath = filepath.Join(v, "hazoom.db")
		c.VectorDir = filepath.Join(v, "vectors")
	}
	if v := os.Getenv("ALLOWED_CORS_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if !isValidLevel(c.DefaultLevel) {
		return fmt.Errorf("invalid default level %q (choose from %s)", c.DefaultLevel, strings.Join(validLevels, ", "))
	}
	for level := range c.LevelModels {
		if !isValidLevel(level) {
			return fmt.Errorf("level_models: unknown level %q", level)
		}
	}
	rl := c.RateLimit
	if rl.RequestsPerMinute <= 0 || rl.MessagesPerMinute <= 0 || rl.ConnectionsPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.StreamHistory < 0 || c.SyncHistory < 0 {
		return fmt.Errorf("history sizes must not be negative")
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base_path must start with /")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func isValidLevel(level string) bool {
	for _, l := range validLevels {
		if l == level {
			return true
		}
	}
	return false
}
