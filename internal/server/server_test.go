package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/internal/contextbuilder"
	"github.com/zoehome/zoe/internal/conversation"
	"github.com/zoehome/zoe/internal/llm"
	"github.com/zoehome/zoe/internal/orchestrator"
	"github.com/zoehome/zoe/internal/retrieval"
	"github.com/zoehome/zoe/internal/storage/sqlite"
	"github.com/zoehome/zoe/pkg/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_SkipsInDevelopmentMode(t *testing.T) {
	h := requireAuth(config.SecurityConfig{Mode: "development", APIToken: "secret"}, okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/chat", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_RejectsMissingToken(t *testing.T) {
	h := requireAuth(config.SecurityConfig{Mode: "production", APIToken: "secret"}, okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/chat", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_AcceptsBearerToken(t *testing.T) {
	h := requireAuth(config.SecurityConfig{Mode: "production", APIToken: "secret"}, okHandler())

	req := httptest.NewRequest("POST", "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_AcceptsQueryParamForWebsockets(t *testing.T) {
	h := requireAuth(config.SecurityConfig{Mode: "production", APIToken: "secret"}, okHandler())

	req := httptest.NewRequest("GET", "/ws/chat?token=secret", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_ProductionWithoutTokenRefuses(t *testing.T) {
	h := requireAuth(config.SecurityConfig{Mode: "production"}, okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/chat", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	limiter := newIPLimiter(1, 3)
	h := rateLimit(limiter, okHandler())

	codes := make(map[int]int)
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes[w.Code]++
	}

	assert.Equal(t, 3, codes[http.StatusOK])
	assert.Equal(t, 7, codes[http.StatusTooManyRequests])
}

func TestRateLimit_TracksIPsIndependently(t *testing.T) {
	limiter := newIPLimiter(1, 1)
	h := rateLimit(limiter, okHandler())

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, addr)
	}
}

func TestSecurityHeaders_Set(t *testing.T) {
	h := securityHeaders(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

// stubExpert answers everything so server tests never depend on an LLM.
type stubExpert struct{}

func (stubExpert) Name() string                  { return "stub" }
func (stubExpert) CanHandle(query string) float64 { return 0.9 }
func (stubExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	return types.ExecutionResult{Success: true, Message: "Done.", ActionTaken: "stub_done"}
}

type unusedChat struct{}

func (unusedChat) Chat(ctx context.Context, messages []llm.ChatMessage) (string, error) {
	return "", context.Canceled
}

func (unusedChat) ChatStream(ctx context.Context, messages []llm.ChatMessage) (<-chan llm.StreamChunk, error) {
	return nil, context.Canceled
}
func (unusedChat) Model() string { return "unused" }

type unusedEmbedder struct{}

func (unusedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, context.Canceled
}
func (unusedEmbedder) Model() string { return "unused" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := sqlite.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry, err := orchestrator.NewRegistry(stubExpert{})
	require.NoError(t, err)
	orch := orchestrator.New(registry, 0.55)

	retriever := retrieval.New(store, store, store, unusedEmbedder{}, nil, config.RetrievalConfig{
		CandidateK:       30,
		MaxResults:       8,
		SimilarityWeight: 0.6,
		RecencyWeight:    0.25,
		ImportanceWeight: 0.15,
	})
	builder := contextbuilder.New(retriever, store, nil, config.ContextConfig{
		TokenBudget:       2000,
		RecentTurns:       6,
		SummaryCompressAt: 5,
	})
	engine := conversation.New(orch, builder, unusedChat{}, store)

	return New(engine, config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		RateLimitPerSec: 100,
		RateLimitBurst:  100,
	}, config.SecurityConfig{Mode: "development"})
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestHandleChat_ExpertReply(t *testing.T) {
	srv := newTestServer(t)

	body := `{"user_id":"u1","session_id":"s1","message":"add bread to my shopping list"}`
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var reply conversation.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "expert", reply.Source)
	assert.Equal(t, "Done.", reply.Text)
}

func TestHandleChat_RejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"user_id":"u1"}`))
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "session_id")
}

func TestHandleChat_RejectsBadJSON(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
