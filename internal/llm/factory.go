package llm

import (
	"fmt"

	"github.com/zoehome/zoe/internal/config"
)

// NewChatModel creates the ChatModel for the configured provider.
func NewChatModel(cfg config.LLMConfig) (ChatModel, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingModel creates the EmbeddingModel for the configured provider.
// Anthropic has no embeddings API, so the anthropic provider pairs with the
// Ollama embedding model; the retriever degrades to keyword matching when
// that backend is also down.
func NewEmbeddingModel(cfg config.LLMConfig) (EmbeddingModel, error) {
	switch cfg.Provider {
	case "openai":
		model := cfg.EmbeddingModel
		if model == "nomic-embed-text" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{APIKey: cfg.OpenAIAPIKey, Model: model}), nil
	case "ollama", "anthropic", "":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.EmbeddingModel}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}

// NewReranker creates the reranker client, or nil when no reranker service
// is configured.
func NewReranker(cfg config.LLMConfig) Reranker {
	if cfg.RerankerURL == "" {
		return nil
	}
	return NewHTTPReranker(RerankerConfig{BaseURL: cfg.RerankerURL})
}
