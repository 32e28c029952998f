package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient talks to the OpenAI chat-completions and embeddings APIs,
// or any OpenAI-compatible endpoint via BaseURL.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	chatBr  *breaker
	timeout time.Duration
}

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	APIKey  string
	Model   string        // default: gpt-4o-mini
	BaseURL string        // default: https://api.openai.com/v1
	Timeout time.Duration // default: 60s
}

type openAIChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// NewOpenAIClient creates an OpenAI chat client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		chatBr:  newBreaker("openai-chat"),
		timeout: cfg.Timeout,
	}
}

// Chat sends a non-streaming chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	result, err := c.chatBr.do(ctx, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.post(ctx, "/chat/completions", openAIChatRequest{
			Model:    c.model,
			Messages: messages,
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var out openAIChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(out.Choices) == 0 {
			return nil, fmt.Errorf("openai returned no choices")
		}
		return out.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	return result.(string), nil
}

// ChatStream sends a streaming chat completion request. OpenAI streams
// server-sent events; each "data:" payload's delta content is forwarded
// as one chunk until the [DONE] marker.
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error) {
	result, err := c.chatBr.do(ctx, func() (interface{}, error) {
		return c.post(ctx, "/chat/completions", openAIChatRequest{
			Model:    c.model,
			Messages: messages,
			Stream:   true,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat stream: %w", err)
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

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				out <- StreamChunk{Done: true}
				return
			}

			var event openAIStreamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				out <- StreamChunk{Err: fmt.Errorf("openai stream decode: %w", err), Done: true}
				return
			}
			if len(event.Choices) > 0 && event.Choices[0].Delta.Content != "" {
				out <- StreamChunk{Token: event.Choices[0].Delta.Content}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("openai stream read: %w", err), Done: true}
			return
		}
		out <- StreamChunk{Done: true}
	}()

	return out, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

var _ ChatModel = (*OpenAIClient)(nil)

// OpenAIEmbeddingClient generates embeddings via the OpenAI embeddings API.
// Kept separate from the chat client because the two are configured with
// different models.
type OpenAIEmbeddingClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	br      *breaker
	timeout time.Duration
}

// OpenAIEmbeddingConfig holds embedding client configuration.
type OpenAIEmbeddingConfig struct {
	APIKey  string
	Model   string        // default: text-embedding-3-small
	BaseURL string        // default: https://api.openai.com/v1
	Timeout time.Duration // default: 15s
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbeddingClient creates an OpenAI embedding client.
func NewOpenAIEmbeddingClient(cfg OpenAIEmbeddingConfig) *OpenAIEmbeddingClient {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &OpenAIEmbeddingClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		br:      newBreaker("openai-embed"),
		timeout: cfg.Timeout,
	}
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.br.do(ctx, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		data, err := json.Marshal(openAIEmbedRequest{Model: c.model, Input: text})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(msg))
		}

		var out openAIEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("openai returned empty embedding vector")
		}
		return out.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return result.([]float32), nil
}

// Model returns the configured embedding model name.
func (c *OpenAIEmbeddingClient) Model() string {
	return c.model
}

var _ EmbeddingModel = (*OpenAIEmbeddingClient)(nil)
