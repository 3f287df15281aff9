package cmd

import (
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazem-soussi-HA/hazoom/internal/backend"
	"github.com/hazem-soussi-HA/hazoom/internal/cache"
	"github.com/hazem-soussi-HA/hazoom/internal/config"
	"github.com/hazem-soussi-HA/hazoom/internal/llm"
	"github.com/hazem-soussi-HA/hazoom/internal/memory"
	"github.com/hazem-soussi-HA/hazoom/internal/ollama"
	"github.com/hazem-soussi-HA/hazoom/internal/server"
	"github.com/hazem-soussi-HA/hazoom/internal/sysinfo"
)

const janitorInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HAZoom server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Port = port
		}
		if url, _ := cmd.Flags().GetString("ollama-url"); url != "" {
			cfg.OllamaURL = url
		}
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			cfg.DataDir = dir
			cfg.DatabasePath = filepath.Join(dir, "hazoom.db")
			cfg.VectorDir = filepath.Join(dir, "vectors")
		}
		if base, _ := cmd.Flags().GetString("base-path"); base != "" {
			cfg.BasePath = base
		}
		if redisURL, _ := cmd.Flags().GetString("redis-url"); redisURL != "" {
			cfg.RedisURL = redisURL
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.EnsureDirs(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := cache.New(cfg.RedisURL, cfg.CachePrefix)
		if err != nil {
			log.Printf("Redis unavailable (%v), using in-memory cache", err)
			c = cache.NewMemoryCache(cfg.CachePrefix)
		}
		defer c.Close()

		store, err := memory.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Printf("Memory database opened at %s", cfg.DatabasePath)

		client := ollama.New(ollama.ClientConfig{BaseURL: cfg.OllamaURL, Timeout: cfg.OllamaTimeout})

		var index *memory.Index
		if cfg.SemanticSearch {
			index, err = memory.NewIndex(cfg.VectorDir, memory.NewOllamaEmbedFunc(client, cfg.EmbeddingModel))
			if err != nil {
				log.Printf("Semantic search disabled: %v", err)
				index = nil
			} else {
				log.Printf("Vector index initialized at %s", cfg.VectorDir)
			}
		}

		models := backend.NewModels(client, c, cfg.PreferredModels, cfg.FallbackModel)
		system := sysinfo.NewScraper(c, cache.SystemInfoTTL)

		mgr := backend.NewManager(backend.Deps{
			Config:   cfg,
			Store:    store,
			Index:    index,
			Provider: buildProviders(cfg, client),
			Models:   models,
			System:   system,
		})
		go mgr.RunJanitor(ctx, janitorInterval)

		srv := server.New(server.Deps{
			Config:   cfg,
			Backends: mgr,
			Store:    store,
			Index:    index,
			System:   system,
		})
		return srv.Start(ctx)
	},
}

// buildProviders returns the generation chain: Ollama first, then the hosted
// APIs that have keys, then the offline simulator.
func buildProviders(cfg *config.Config, client *ollama.Client) *llm.Chain {
	providers := []llm.Provider{llm.NewOllamaProvider(client, cfg.FallbackModel)}
	if cfg.OpenAI.APIKey != "" {
		providers = append(providers, llm.NewOpenAIProvider(llm.OpenAIConfig{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
		}))
	}
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey: cfg.Anthropic.APIKey,
			Model:  cfg.Anthropic.Model,
		}))
	}
	providers = append(providers, llm.NewSimulatedProvider(cfg.TypingDelay))

	chain := llm.NewChain(providers...)
	log.Printf("LLM providers: %v", chain.Names())
	return chain
}

func init() {
	serveCmd.Flags().String("host", "", "bind address (default 0.0.0.0)")
	serveCmd.Flags().Int("port", 0, "listen port (default 8080)")
	serveCmd.Flags().String("ollama-url", "", "Ollama daemon URL")
	serveCmd.Flags().String("data-dir", "", "data directory")
	serveCmd.Flags().String("base-path", "", "URL prefix the API is also served under")
	serveCmd.Flags().String("redis-url", "", "Redis URL for the shared cache")
	rootCmd.AddCommand(serveCmd)
}
