package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPReranker calls an external cross-encoder reranker service with the
// contract {query, candidates} -> {scores}. Scores align by index with the
// submitted candidates.
type HTTPReranker struct {
	baseURL string
	client  *http.Client
	br      *breaker
	timeout time.Duration
}

// RerankerConfig holds reranker client configuration.
type RerankerConfig struct {
	BaseURL string
	Timeout time.Duration // default: 10s
}

type rerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTPReranker creates a reranker client for the given service.
func NewHTTPReranker(cfg RerankerConfig) *HTTPReranker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPReranker{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		br:      newBreaker("reranker"),
		timeout: cfg.Timeout,
	}
}

// Rerank scores candidates against the query. The service must return
// exactly one score per candidate; a length mismatch is treated as a
// backend failure so the retriever degrades instead of misranking.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	result, err := r.br.do(ctx, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		data, err := json.Marshal(rerankRequest{Query: query, Candidates: candidates})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(msg))
		}

		var out rerankResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(out.Scores) != len(candidates) {
			return nil, fmt.Errorf("reranker returned %d scores for %d candidates", len(out.Scores), len(candidates))
		}
		return out.Scores, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return result.([]float64), nil
}

var _ Reranker = (*HTTPReranker)(nil)
