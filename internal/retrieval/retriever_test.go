package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/pkg/types"
)

var fixedNow = time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC)

// memStore is an in-memory MemoryStore + SearchProvider + GraphProvider.
type memStore struct {
	records   []types.MemoryRecord
	neighbors []types.MemoryRecord
	searchErr error
	touched   []string
}

func (m *memStore) Append(ctx context.Context, r *types.MemoryRecord) error {
	m.records = append(m.records, *r)
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	for i := range m.records {
		if m.records[i].ID == id {
			return &m.records[i], nil
		}
	}
	return nil, types.ErrNotFound
}

func (m *memStore) ListByUser(ctx context.Context, userID string, limit int) ([]types.MemoryRecord, error) {
	out := make([]types.MemoryRecord, 0, len(m.records))
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) TouchAccess(ctx context.Context, id string) error {
	m.touched = append(m.touched, id)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) VectorSearch(ctx context.Context, userID string, query []float32, limit int) ([]types.MemoryRecord, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	out, _ := m.ListByUser(ctx, userID, limit)
	return out, nil
}

func (m *memStore) Neighbors(ctx context.Context, userID string, entityIDs, exclude []string, limit int) ([]types.MemoryRecord, error) {
	return m.neighbors, nil
}

// fakeEmbedder returns a fixed vector, or fails when down.
type fakeEmbedder struct {
	vec  []float32
	down bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.down {
		return nil, errors.New("embedding backend unreachable")
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Model() string { return "fake" }

// fakeReranker inverts candidate order, or fails when down.
type fakeReranker struct {
	down bool
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if f.down {
		return nil, errors.New("reranker unreachable")
	}
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = float64(i) / float64(len(candidates))
	}
	return scores, nil
}

func testConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		CandidateK:       30,
		MaxResults:       8,
		SimilarityWeight: 0.6,
		RecencyWeight:    0.25,
		ImportanceWeight: 0.15,
		GraphWeight:      0.5,
		EnableGraph:      true,
	}
}

func record(id string, vec []float32, age time.Duration, importance float64) types.MemoryRecord {
	return types.MemoryRecord{
		ID:         id,
		UserID:     "u1",
		Text:       "memory " + id,
		Embedding:  vec,
		Importance: importance,
		CreatedAt:  fixedNow.Add(-age),
	}
}

func newTestRetriever(store *memStore, emb *fakeEmbedder, cfg config.RetrievalConfig) *Retriever {
	r := New(store, store, store, emb, nil, cfg)
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestRecencyScore_MonotonicDecay(t *testing.T) {
	day := recencyScore(fixedNow.Add(-24*time.Hour), fixedNow)
	month := recencyScore(fixedNow.Add(-30*24*time.Hour), fixedNow)
	year := recencyScore(fixedNow.Add(-365*24*time.Hour), fixedNow)

	assert.Greater(t, day, month)
	assert.Greater(t, month, year)
	assert.InDelta(t, 0.5, month, 0.001) // half-life is 30 days
	assert.Equal(t, 1.0, recencyScore(fixedNow.Add(time.Hour), fixedNow))
}

func TestRetrieve_CapsAtMaxResults(t *testing.T) {
	store := &memStore{}
	vec := []float32{1, 0, 0}
	for i := 0; i < 25; i++ {
		r := record(fmt.Sprintf("m%02d", i), vec, time.Hour, 0.5)
		store.records = append(store.records, r)
	}
	retriever := newTestRetriever(store, &fakeEmbedder{vec: vec}, testConfig())

	result, err := retriever.Retrieve(context.Background(), "u1", "what do I like")

	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Len(t, result.Memories, 8)
}

func TestRetrieve_NewerOutranksOlderWhenOtherwiseEqual(t *testing.T) {
	vec := []float32{1, 0, 0}
	store := &memStore{records: []types.MemoryRecord{
		record("old", vec, 60*24*time.Hour, 0.5),
		record("new", vec, time.Hour, 0.5),
	}}
	retriever := newTestRetriever(store, &fakeEmbedder{vec: vec}, testConfig())

	result, err := retriever.Retrieve(context.Background(), "u1", "anything")

	require.NoError(t, err)
	require.Len(t, result.Memories, 2)
	assert.Equal(t, "new", result.Memories[0].Memory.ID)
	assert.Greater(t, result.Memories[0].Score, result.Memories[1].Score)
}

func TestRetrieve_ImportanceBreaksSimilarityTies(t *testing.T) {
	vec := []float32{1, 0, 0}
	store := &memStore{records: []types.MemoryRecord{
		record("minor", vec, time.Hour, 0.1),
		record("major", vec, time.Hour, 0.9),
	}}
	retriever := newTestRetriever(store, &fakeEmbedder{vec: vec}, testConfig())

	result, err := retriever.Retrieve(context.Background(), "u1", "anything")

	require.NoError(t, err)
	require.Len(t, result.Memories, 2)
	assert.Equal(t, "major", result.Memories[0].Memory.ID)
}

func TestRetrieve_EqualScoresOrderByID(t *testing.T) {
	vec := []float32{1, 0, 0}
	store := &memStore{records: []types.MemoryRecord{
		record("b", vec, time.Hour, 0.5),
		record("a", vec, time.Hour, 0.5),
		record("c", vec, time.Hour, 0.5),
	}}
	retriever := newTestRetriever(store, &fakeEmbedder{vec: vec}, testConfig())

	for i := 0; i < 5; i++ {
		result, err := retriever.Retrieve(context.Background(), "u1", "anything")
		require.NoError(t, err)
		require.Len(t, result.Memories, 3)
		assert.Equal(t, "a", result.Memories[0].Memory.ID)
		assert.Equal(t, "b", result.Memories[1].Memory.ID)
		assert.Equal(t, "c", result.Memories[2].Memory.ID)
	}
}

func TestRetrieve_EmbedderDownFallsBackToKeyword(t *testing.T) {
	store := &memStore{records: []types.MemoryRecord{
		{ID: "m1", UserID: "u1", Text: "Their favorite color is teal", Importance: 0.5, CreatedAt: fixedNow.Add(-time.Hour)},
		{ID: "m2", UserID: "u1", Text: "The car needs a service", Importance: 0.5, CreatedAt: fixedNow.Add(-time.Hour)},
	}}
	retriever := newTestRetriever(store, &fakeEmbedder{down: true}, testConfig())

	result, err := retriever.Retrieve(context.Background(), "u1", "what is my favorite color")

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "m1", result.Memories[0].Memory.ID)
	assert.Equal(t, "keyword", result.Memories[0].Source)
}

func TestRetrieve_VectorSearchDownFallsBackToKeyword(t *testing.T) {
	store := &memStore{
		records: []types.MemoryRecord{
			{ID: "m1", UserID: "u1", Text: "The plumber is called Dave", Importance: 0.5, CreatedAt: fixedNow.Add(-time.Hour)},
		},
		searchErr: errors.New("index offline"),
	}
	retriever := newTestRetriever(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, testConfig())

	result, err := retriever.Retrieve(context.Background(), "u1", "who is the plumber")

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "m1", result.Memories[0].Memory.ID)
}

func TestRetrieve_GraphNeighborDiscounted(t *testing.T) {
	vec := []float32{1, 0, 0}
	direct := record("direct", vec, time.Hour, 0.5)
	direct.EntityRefs = []string{"anna"}
	neighbor := record("neighbor", vec, time.Hour, 0.5)

	store := &memStore{
		records:   []types.MemoryRecord{direct},
		neighbors: []types.MemoryRecord{neighbor},
	}
	retriever := newTestRetriever(store, &fakeEmbedder{vec: vec}, testConfig())

	result, err := retriever.Retrieve(context.Background(), "u1", "anna")

	require.NoError(t, err)
	require.Len(t, result.Memories, 2)
	assert.Equal(t, "direct", result.Memories[0].Memory.ID)
	assert.Equal(t, "neighbor", result.Memories[1].Memory.ID)
	assert.Equal(t, "graph", result.Memories[1].Source)
	assert.Less(t, result.Memories[1].Score, result.Memories[0].Score)
}

func TestRetrieve_RerankerDownKeepsBlendedOrder(t *testing.T) {
	vec := []float32{1, 0, 0}
	store := &memStore{records: []types.MemoryRecord{
		record("a", vec, time.Hour, 0.9),
		record("b", vec, time.Hour, 0.1),
	}}
	cfg := testConfig()
	cfg.EnableRerank = true
	retriever := New(store, store, store, &fakeEmbedder{vec: vec}, &fakeReranker{down: true}, cfg)
	retriever.now = func() time.Time { return fixedNow }

	result, err := retriever.Retrieve(context.Background(), "u1", "anything")

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	require.Len(t, result.Memories, 2)
	assert.Equal(t, "a", result.Memories[0].Memory.ID)
}

func TestRetrieve_EmptyQueryIsEmptyResult(t *testing.T) {
	store := &memStore{records: []types.MemoryRecord{
		record("m1", []float32{1, 0, 0}, time.Hour, 0.5),
	}}
	retriever := newTestRetriever(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, testConfig())

	result, err := retriever.Retrieve(context.Background(), "u1", "")

	require.NoError(t, err)
	assert.Empty(t, result.Memories)
	assert.False(t, result.Degraded)
}

func TestRetrieve_TouchesReturnedMemories(t *testing.T) {
	vec := []float32{1, 0, 0}
	store := &memStore{records: []types.MemoryRecord{record("m1", vec, time.Hour, 0.5)}}
	retriever := newTestRetriever(store, &fakeEmbedder{vec: vec}, testConfig())

	_, err := retriever.Retrieve(context.Background(), "u1", "anything")

	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, store.touched)
}

func TestExpandQuery_OriginalAlwaysFirst(t *testing.T) {
	variants := expandQuery("buy groceries")

	require.NotEmpty(t, variants)
	assert.Equal(t, "buy groceries", variants[0])
	assert.LessOrEqual(t, len(variants), 4)
	assert.Contains(t, variants, "purchase groceries")
}

func TestKeywordMatch_NoOverlapYieldsNothing(t *testing.T) {
	records := []types.MemoryRecord{
		{ID: "m1", UserID: "u1", Text: "the boiler code is 4412", CreatedAt: fixedNow},
	}
	w := weights{similarity: 0.6, recency: 0.25, importance: 0.15}

	out := keywordMatch("completely unrelated zebra", records, fixedNow, w, 8)

	assert.Empty(t, out)
}
