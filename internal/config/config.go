package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port        string `mapstructure:"PORT"`
	GinMode     string `mapstructure:"GIN_MODE"`
	Environment string `mapstructure:"ENVIRONMENT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Storage
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Redis (optional, caches language detection and translation)
	RedisURL string        `mapstructure:"REDIS_URL"`
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`

	// LLM / Embedding (OpenAI compatible)
	LLMProvider         string        `mapstructure:"LLM_PROVIDER"`
	OpenAIAPIKey        string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `mapstructure:"OPENAI_BASE_URL"`
	ChatModel           string        `mapstructure:"CHAT_MODEL"`
	EmbeddingModel      string        `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingDimensions int           `mapstructure:"EMBEDDING_DIMENSIONS"`
	ProviderTimeout     time.Duration `mapstructure:"PROVIDER_TIMEOUT"`

	// Chunking
	ChunkSizeTokens    int `mapstructure:"CHUNK_SIZE_TOKENS"`
	ChunkOverlapTokens int `mapstructure:"CHUNK_OVERLAP_TOKENS"`

	// Crawling
	CrawlMaxPages     int           `mapstructure:"CRAWL_MAX_PAGES"`
	CrawlMaxDepth     int           `mapstructure:"CRAWL_MAX_DEPTH"`
	CrawlRateLimitMs  int           `mapstructure:"CRAWL_RATE_LIMIT_MS"`
	CrawlFetchTimeout time.Duration `mapstructure:"CRAWL_FETCH_TIMEOUT"`
	CrawlUserAgent    string        `mapstructure:"CRAWL_USER_AGENT"`
	RecrawlInterval   time.Duration `mapstructure:"RECRAWL_INTERVAL"`

	// Query
	QueryTopK                int     `mapstructure:"QUERY_TOP_K"`
	QuerySimilarityThreshold float64 `mapstructure:"QUERY_SIMILARITY_THRESHOLD"`
	AnswerTemperature        float64 `mapstructure:"ANSWER_TEMPERATURE"`
	AnswerMaxTokens          int     `mapstructure:"ANSWER_MAX_TOKENS"`

	// Tracing; disabled unless both are set.
	CozeloopWorkspaceID string `mapstructure:"COZELOOP_WORKSPACE_ID"`
	CozeloopAPIToken    string `mapstructure:"COZELOOP_API_TOKEN"`
}

var keys = []string{
	"PORT", "GIN_MODE", "ENVIRONMENT", "LOG_LEVEL",
	"STORE_DRIVER", "DATABASE_URL", "REDIS_URL", "CACHE_TTL",
	"LLM_PROVIDER", "OPENAI_API_KEY", "OPENAI_BASE_URL", "CHAT_MODEL",
	"EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "PROVIDER_TIMEOUT",
	"CHUNK_SIZE_TOKENS", "CHUNK_OVERLAP_TOKENS",
	"CRAWL_MAX_PAGES", "CRAWL_MAX_DEPTH", "CRAWL_RATE_LIMIT_MS", "CRAWL_FETCH_TIMEOUT",
	"CRAWL_USER_AGENT", "RECRAWL_INTERVAL",
	"QUERY_TOP_K", "QUERY_SIMILARITY_THRESHOLD", "ANSWER_TEMPERATURE", "ANSWER_MAX_TOKENS",
	"COZELOOP_WORKSPACE_ID", "COZELOOP_API_TOKEN",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8090")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "postgres://localhost:5432/knowdesk?sslmode=disable")
	v.SetDefault("CACHE_TTL", 24*time.Hour)

	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("CHAT_MODEL", "gpt-4o-mini")
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("EMBEDDING_DIMENSIONS", 1536)
	v.SetDefault("PROVIDER_TIMEOUT", 20*time.Second)

	v.SetDefault("CHUNK_SIZE_TOKENS", 600)
	v.SetDefault("CHUNK_OVERLAP_TOKENS", 80)

	v.SetDefault("CRAWL_MAX_PAGES", 100)
	v.SetDefault("CRAWL_MAX_DEPTH", 3)
	v.SetDefault("CRAWL_RATE_LIMIT_MS", 100)
	v.SetDefault("CRAWL_FETCH_TIMEOUT", 10*time.Second)
	v.SetDefault("CRAWL_USER_AGENT", "knowdesk-crawler/1.0 (+https://github.com/tgo/captain)")
	v.SetDefault("RECRAWL_INTERVAL", time.Duration(0))

	v.SetDefault("QUERY_TOP_K", 5)
	v.SetDefault("QUERY_SIMILARITY_THRESHOLD", 0.5)
	v.SetDefault("ANSWER_TEMPERATURE", 0.1)
	v.SetDefault("ANSWER_MAX_TOKENS", 800)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// .env is optional
	_ = v.ReadInConfig()

	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			v.Set(key, val)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would stall chunking or break the index.
func (c *Config) Validate() error {
	if c.ChunkSizeTokens <= 0 {
		return fmt.Errorf("CHUNK_SIZE_TOKENS must be positive, got %d", c.ChunkSizeTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkSizeTokens {
		return fmt.Errorf("CHUNK_OVERLAP_TOKENS must be in [0, %d), got %d", c.ChunkSizeTokens, c.ChunkOverlapTokens)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.CrawlMaxPages <= 0 {
		return fmt.Errorf("CRAWL_MAX_PAGES must be positive, got %d", c.CrawlMaxPages)
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.GinMode) == "debug" || c.Environment == "development"
}
