package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient talks to a local Ollama instance for chat completion and
// embeddings. Chat requests use /api/chat; embeddings use /api/embed.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
	chatBr  *breaker
	embedBr *breaker
	timeout time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	BaseURL string        // default: http://localhost:11434
	Model   string        // default: qwen2.5:7b
	Timeout time.Duration // per-request timeout, default: 60s
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// The embeddings field is a 2D array; we always use the first row.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates an Ollama client, applying defaults for any
// zero-valued configuration fields.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		chatBr:  newBreaker("ollama-chat"),
		embedBr: newBreaker("ollama-embed"),
		timeout: cfg.Timeout,
	}
}

// Chat sends a non-streaming chat request and returns the full reply.
func (c *OllamaClient) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	result, err := c.chatBr.do(ctx, func() (interface{}, error) {
		return c.chat(ctx, messages)
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return result.(string), nil
}

func (c *OllamaClient) chat(ctx context.Context, messages []ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, "/api/chat", ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Message.Content, nil
}

// ChatStream sends a streaming chat request. Ollama streams newline
// delimited JSON objects; each object's message content is forwarded as
// one chunk. The returned channel is closed after the final chunk.
func (c *OllamaClient) ChatStream(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error) {
	// Only connection setup runs through the breaker; a consumer-side
	// cancel mid-stream is not a backend failure.
	result, err := c.chatBr.do(ctx, func() (interface{}, error) {
		return c.post(ctx, "/api/chat", ollamaChatRequest{
			Model:    c.model,
			Messages: messages,
			Stream:   true,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat stream: %w", err)
	}
	resp := result.(*http.Response)

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- StreamChunk{Err: ctx.Err(), Done: true}
				return
			default:
			}

			var line ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				out <- StreamChunk{Err: fmt.Errorf("ollama stream decode: %w", err), Done: true}
				return
			}
			if line.Message.Content != "" {
				out <- StreamChunk{Token: line.Message.Content}
			}
			if line.Done {
				out <- StreamChunk{Done: true}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("ollama stream read: %w", err), Done: true}
			return
		}
		out <- StreamChunk{Done: true}
	}()

	return out, nil
}

// Embed generates an embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.embedBr.do(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return result.([]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, "/api/embed", ollamaEmbedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding vector")
	}
	return out.Embeddings[0], nil
}

// post issues a JSON POST and returns the response on 2xx. Non-2xx
// responses are drained and converted to errors so the breaker counts them
// as failures.
func (c *OllamaClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

var _ ChatModel = (*OllamaClient)(nil)
var _ EmbeddingModel = (*OllamaClient)(nil)
