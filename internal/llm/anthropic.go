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

const anthropicVersion = "2023-06-01"

// AnthropicClient talks to the Anthropic Messages API. Anthropic carries
// the system prompt as a top-level field rather than a message, so the
// client splits it out of the message list.
type AnthropicClient struct {
	apiKey  string
	model   string
	client  *http.Client
	chatBr  *breaker
	timeout time.Duration
}

// AnthropicConfig holds Anthropic client configuration.
type AnthropicConfig struct {
	APIKey  string
	Model   string        // default: claude-3-5-sonnet-20241022
	Timeout time.Duration // default: 60s
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []ChatMessage `json:"messages"`
	Stream    bool          `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

// NewAnthropicClient creates an Anthropic chat client.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		chatBr:  newBreaker("anthropic-chat"),
		timeout: cfg.Timeout,
	}
}

// Chat sends a non-streaming messages request.
func (c *AnthropicClient) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	result, err := c.chatBr.do(ctx, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.post(ctx, c.buildRequest(messages, false))
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var out anthropicResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(out.Content) == 0 {
			return nil, fmt.Errorf("anthropic returned empty content")
		}
		return out.Content[0].Text, nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic chat: %w", err)
	}
	return result.(string), nil
}

// ChatStream sends a streaming messages request. Text arrives as
// content_block_delta events; message_stop ends the stream.
func (c *AnthropicClient) ChatStream(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error) {
	result, err := c.chatBr.do(ctx, func() (interface{}, error) {
		return c.post(ctx, c.buildRequest(messages, true))
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic chat stream: %w", err)
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

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				out <- StreamChunk{Err: fmt.Errorf("anthropic stream decode: %w", err), Done: true}
				return
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text != "" {
					out <- StreamChunk{Token: event.Delta.Text}
				}
			case "message_stop":
				out <- StreamChunk{Done: true}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("anthropic stream read: %w", err), Done: true}
			return
		}
		out <- StreamChunk{Done: true}
	}()

	return out, nil
}

// buildRequest splits any leading system message into Anthropic's
// top-level system field.
func (c *AnthropicClient) buildRequest(messages []ChatMessage, stream bool) anthropicRequest {
	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: 1024,
		Stream:    stream,
	}
	for _, m := range messages {
		if m.Role == "system" && req.System == "" {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, m)
	}
	return req
}

func (c *AnthropicClient) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

var _ ChatModel = (*AnthropicClient)(nil)
