package contextbuilder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/internal/retrieval"
	"github.com/zoehome/zoe/pkg/types"
)

// fakeStore backs the retriever and turn store for builder tests.
type fakeStore struct {
	records []types.MemoryRecord
	turns   []types.Message
}

func (f *fakeStore) Append(ctx context.Context, r *types.MemoryRecord) error {
	f.records = append(f.records, *r)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	return nil, types.ErrNotFound
}

func (f *fakeStore) ListByUser(ctx context.Context, userID string, limit int) ([]types.MemoryRecord, error) {
	return f.records, nil
}

func (f *fakeStore) TouchAccess(ctx context.Context, id string) error { return nil }
func (f *fakeStore) Close() error                                     { return nil }

func (f *fakeStore) VectorSearch(ctx context.Context, userID string, query []float32, limit int) ([]types.MemoryRecord, error) {
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeStore) AppendTurn(ctx context.Context, msg types.Message) error {
	f.turns = append(f.turns, msg)
	return nil
}

func (f *fakeStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]types.Message, error) {
	if len(f.turns) > limit {
		return f.turns[len(f.turns)-limit:], nil
	}
	return f.turns, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fixedEmbedder) Model() string { return "fake" }

func retrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		CandidateK:       30,
		MaxResults:       8,
		SimilarityWeight: 0.6,
		RecencyWeight:    0.25,
		ImportanceWeight: 0.15,
	}
}

func contextConfig() config.ContextConfig {
	return config.ContextConfig{
		TokenBudget:       2000,
		RecentTurns:       6,
		SummaryCompressAt: 5,
	}
}

func memoryRecord(id, text string) types.MemoryRecord {
	return types.MemoryRecord{
		ID:         id,
		UserID:     "u1",
		Text:       text,
		Embedding:  []float32{1, 0, 0},
		Importance: 0.5,
		CreatedAt:  time.Now().Add(-time.Hour),
	}
}

func summaryServer(t *testing.T, calendar apiclient.CalendarSummary, lists apiclient.ListsSummary) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/calendar"):
			json.NewEncoder(w).Encode(calendar)
		case strings.HasPrefix(r.URL.Path, "/lists"):
			json.NewEncoder(w).Encode(lists)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return apiclient.New(apiclient.Config{BaseURL: srv.URL})
}

func TestBuild_AssemblesAllSources(t *testing.T) {
	store := &fakeStore{
		records: []types.MemoryRecord{memoryRecord("m1", "Their favorite color is teal")},
		turns: []types.Message{
			{ID: "t1", SessionID: "s1", UserID: "u1", Role: types.RoleUser, Text: "hello"},
			{ID: "t2", SessionID: "s1", UserID: "u1", Role: types.RoleAssistant, Text: "hi there"},
		},
	}
	api := summaryServer(t,
		apiclient.CalendarSummary{Upcoming: 2, Titles: []string{"dentist", "school run"}},
		apiclient.ListsSummary{OpenItems: 3, Overdue: 1},
	)
	retriever := retrieval.New(store, store, nil, fixedEmbedder{}, nil, retrievalConfig())
	b := New(retriever, store, api, contextConfig())

	bundle, err := b.Build(context.Background(), "u1", "s1", "what is my favorite color")

	require.NoError(t, err)
	require.Len(t, bundle.Memories.Memories, 1)
	assert.Equal(t, "Their favorite color is teal", bundle.Memories.Memories[0].Memory.Text)
	assert.Len(t, bundle.RecentTurns, 2)
	assert.Contains(t, bundle.Summaries["calendar"], "dentist")
	assert.Contains(t, bundle.Summaries["lists"], "3 open item(s)")
	assert.Contains(t, bundle.Summaries["lists"], "1 overdue")
}

func TestBuild_TokenBudgetDropsOversizedMemories(t *testing.T) {
	long := strings.Repeat("a very long memory about nothing in particular ", 100)
	store := &fakeStore{records: []types.MemoryRecord{
		memoryRecord("big", long),
		memoryRecord("small", "likes tea"),
	}}
	retriever := retrieval.New(store, store, nil, fixedEmbedder{}, nil, retrievalConfig())
	cfg := contextConfig()
	cfg.TokenBudget = 50
	b := New(retriever, store, nil, cfg)

	bundle, err := b.Build(context.Background(), "u1", "s1", "anything")

	require.NoError(t, err)
	require.Len(t, bundle.Memories.Memories, 1)
	assert.Equal(t, "small", bundle.Memories.Memories[0].Memory.ID)
}

func TestBuild_NilAPIOmitsSummaries(t *testing.T) {
	store := &fakeStore{}
	retriever := retrieval.New(store, store, nil, fixedEmbedder{}, nil, retrievalConfig())
	b := New(retriever, store, nil, contextConfig())

	bundle, err := b.Build(context.Background(), "u1", "s1", "anything")

	require.NoError(t, err)
	assert.Empty(t, bundle.Summaries)
}

func TestBuild_FailingCollaboratorOmitsItsSummary(t *testing.T) {
	store := &fakeStore{records: []types.MemoryRecord{memoryRecord("m1", "likes tea")}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	api := apiclient.New(apiclient.Config{BaseURL: srv.URL})

	retriever := retrieval.New(store, store, nil, fixedEmbedder{}, nil, retrievalConfig())
	b := New(retriever, store, api, contextConfig())

	bundle, err := b.Build(context.Background(), "u1", "s1", "anything")

	require.NoError(t, err)
	assert.Empty(t, bundle.Summaries)
	assert.Len(t, bundle.Memories.Memories, 1) // other sources unaffected
}

func TestFormatCalendar_CompressesLongTitleLists(t *testing.T) {
	b := New(nil, nil, nil, contextConfig())
	s := b.formatCalendar(&apiclient.CalendarSummary{
		Upcoming: 9,
		Titles:   []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"},
	})

	assert.Contains(t, s, "9 upcoming")
	assert.NotContains(t, s, "a, b") // enumerated only below the threshold
}

func TestRender_FlattensBundle(t *testing.T) {
	m := memoryRecord("m1", "Their favorite color is teal")
	bundle := &types.ContextBundle{
		Memories: types.RetrievalResult{Memories: []types.ScoredMemory{{Memory: &m, Score: 0.9}}},
		Summaries: map[string]string{
			"calendar": "Calendar: no upcoming events.",
		},
	}

	rendered := Render(bundle)

	assert.Contains(t, rendered, "teal")
	assert.Contains(t, rendered, "Calendar: no upcoming events.")
}

func TestTokenCounter_CountsSomething(t *testing.T) {
	c := NewTokenCounter()

	assert.Zero(t, c.Count(""))
	assert.Greater(t, c.Count("the quick brown fox jumps over the lazy dog"), 4)
}
