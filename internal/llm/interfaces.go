// Package llm provides clients for the external model backends the core
// depends on: chat completion (streaming and non-streaming), embedding
// generation, and cross-encoder reranking. Every outbound call is wrapped
// in a circuit breaker and an explicit timeout.
package llm

import "context"

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// StreamChunk is one unit of a streamed reply. Exactly one of Token or Err
// is meaningful; a chunk with Done=true is the final chunk on the channel.
type StreamChunk struct {
	Token string
	Done  bool
	Err   error
}

// ChatModel is the interface for conversational LLM backends.
type ChatModel interface {
	// Chat sends the full message list and returns the complete reply.
	Chat(ctx context.Context, messages []ChatMessage) (string, error)

	// ChatStream sends the message list and returns a channel of reply
	// chunks. The channel is closed after the final chunk. Cancelling ctx
	// abandons the in-flight generation and closes the channel.
	ChatStream(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error)

	// Model returns the configured model name.
	Model() string
}

// EmbeddingModel is the interface for embedding backends. Calls must be
// idempotent and side-effect free.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Reranker scores a candidate list against a query with a cross-encoder
// style relevance model. Scores align by index with candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string) ([]float64, error)
}
