// Package config provides configuration management for the Zoe core.
// Settings load from environment variables with the ZOE_ prefix and carry
// sensible defaults; expert tuning (trigger phrases, keyword sets, the
// execution threshold) lives in a YAML file so confidence constants can be
// adjusted without a code change.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all settings for the Zoe core service.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Context   ContextConfig
	Security  SecurityConfig
	Experts   ExpertsConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 8990)
	Host string // Server host (default: 127.0.0.1)

	// RateLimitPerSec is the sustained request rate; RateLimitBurst the
	// allowed burst above it.
	RateLimitPerSec float64
	RateLimitBurst  int
}

// StorageConfig contains memory-store configuration.
type StorageConfig struct {
	Engine      string // sqlite or postgres (default: sqlite)
	DataPath    string // SQLite data directory (default: ./data)
	PostgresDSN string // Postgres connection string when Engine is postgres
}

// LLMConfig contains LLM, embedding, and reranker backend configuration.
type LLMConfig struct {
	Provider        string // ollama, openai, anthropic (default: ollama)
	OllamaURL       string
	OllamaModel     string
	EmbeddingModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string

	// RerankerURL is the base URL of the cross-encoder reranker service.
	// Empty disables reranking regardless of the retrieval flag.
	RerankerURL string
}

// RetrievalConfig tunes the memory-retrieval pipeline.
type RetrievalConfig struct {
	// CandidateK is how many vector candidates stage two keeps.
	CandidateK int

	// MaxResults is the hard cap on the final ranked result.
	MaxResults int

	// Score blend weights; must sum to 1.0.
	SimilarityWeight float64
	RecencyWeight    float64
	ImportanceWeight float64

	// GraphWeight discounts candidates admitted via one-hop graph
	// expansion relative to their neighbor's score.
	GraphWeight float64

	// Feature flags for the optional pipeline stages.
	EnableExpansion bool
	EnableGraph     bool
	EnableRerank    bool
}

// ContextConfig tunes the context assembler.
type ContextConfig struct {
	// TokenBudget is the maximum assembled context size in tokens.
	TokenBudget int

	// RecentTurns is how many prior conversation turns to consider.
	RecentTurns int

	// SummaryCompressAt is the item count above which structured lists
	// are compressed to count summaries instead of enumerated.
	SummaryCompressAt int
}

// SecurityConfig contains auth settings for the chat surface.
type SecurityConfig struct {
	Mode     string // development or production (default: development)
	APIToken string // Bearer token required in production mode
}

// ExpertsConfig locates the experts YAML file and carries the collaborator
// API endpoints the experts execute against.
type ExpertsConfig struct {
	ConfigPath string // Path to experts.yaml (default: ./experts.yaml)

	// APIBaseURL is the base URL of the domain CRUD collaborators
	// (lists, calendar, reminders, home, journal, people).
	APIBaseURL string
	APIToken   string
}

// Load builds a Config from environment variables and defaults, then
// validates it. It does not read the experts YAML file; see LoadExpertsFile.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("ZOE_PORT", 8990),
			Host:            getEnv("ZOE_HOST", "127.0.0.1"),
			RateLimitPerSec: getEnvFloat("ZOE_RATE_LIMIT_PER_SEC", 10.0),
			RateLimitBurst:  getEnvInt("ZOE_RATE_LIMIT_BURST", 20),
		},
		Storage: StorageConfig{
			Engine:      getEnv("ZOE_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("ZOE_DATA_PATH", "./data"),
			PostgresDSN: getEnv("ZOE_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:        getEnv("ZOE_LLM_PROVIDER", "ollama"),
			OllamaURL:       getEnv("ZOE_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:     getEnv("ZOE_OLLAMA_MODEL", "qwen2.5:7b"),
			EmbeddingModel:  getEnv("ZOE_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:    getEnv("ZOE_OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("ZOE_OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey: getEnv("ZOE_ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ZOE_ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
			RerankerURL:     getEnv("ZOE_RERANKER_URL", ""),
		},
		Retrieval: RetrievalConfig{
			CandidateK:       getEnvInt("ZOE_RETRIEVAL_CANDIDATES", 30),
			MaxResults:       getEnvInt("ZOE_RETRIEVAL_MAX_RESULTS", 8),
			SimilarityWeight: getEnvFloat("ZOE_RETRIEVAL_W_SIMILARITY", 0.6),
			RecencyWeight:    getEnvFloat("ZOE_RETRIEVAL_W_RECENCY", 0.25),
			ImportanceWeight: getEnvFloat("ZOE_RETRIEVAL_W_IMPORTANCE", 0.15),
			GraphWeight:      getEnvFloat("ZOE_RETRIEVAL_W_GRAPH", 0.5),
			EnableExpansion:  getEnvBool("ZOE_RETRIEVAL_EXPANSION", false),
			EnableGraph:      getEnvBool("ZOE_RETRIEVAL_GRAPH", true),
			EnableRerank:     getEnvBool("ZOE_RETRIEVAL_RERANK", false),
		},
		Context: ContextConfig{
			TokenBudget:       getEnvInt("ZOE_CONTEXT_TOKEN_BUDGET", 2000),
			RecentTurns:       getEnvInt("ZOE_CONTEXT_RECENT_TURNS", 6),
			SummaryCompressAt: getEnvInt("ZOE_CONTEXT_COMPRESS_AT", 5),
		},
		Security: SecurityConfig{
			Mode:     getEnv("ZOE_SECURITY_MODE", "development"),
			APIToken: getEnv("ZOE_API_TOKEN", ""),
		},
		Experts: ExpertsConfig{
			ConfigPath: getEnv("ZOE_EXPERTS_CONFIG", "./experts.yaml"),
			APIBaseURL: getEnv("ZOE_API_BASE_URL", "http://localhost:8000"),
			APIToken:   getEnv("ZOE_API_TOKEN", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that a typo in the environment
// would otherwise surface as confusing ranking behavior at request time.
func (c *Config) Validate() error {
	sum := c.Retrieval.SimilarityWeight + c.Retrieval.RecencyWeight + c.Retrieval.ImportanceWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("config: retrieval weights must sum to 1.0, got %.3f", sum)
	}
	if c.Retrieval.MaxResults <= 0 {
		return fmt.Errorf("config: retrieval max results must be positive, got %d", c.Retrieval.MaxResults)
	}
	if c.Retrieval.CandidateK < c.Retrieval.MaxResults {
		return fmt.Errorf("config: candidate K (%d) must be >= max results (%d)",
			c.Retrieval.CandidateK, c.Retrieval.MaxResults)
	}
	if c.Context.TokenBudget <= 0 {
		return fmt.Errorf("config: context token budget must be positive, got %d", c.Context.TokenBudget)
	}
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: ZOE_POSTGRES_DSN is required when storage engine is postgres")
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. Recognizes true/1/yes and false/0/no, case-insensitive.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
