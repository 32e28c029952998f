package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoehome/zoe/pkg/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(userID, text string, embedding []float32) *types.MemoryRecord {
	return &types.MemoryRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Text:       text,
		Embedding:  embedding,
		Importance: 0.5,
		CreatedAt:  time.Now(),
	}
}

func TestStore_AppendAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	r := testRecord("u1", "Their favorite color is teal", []float32{0.1, 0.2, 0.3})
	r.EntityRefs = []string{"anna"}
	require.NoError(t, s.Append(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Text, got.Text)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.Equal(t, []string{"anna"}, got.EntityRefs)
	assert.Zero(t, got.AccessCount)
}

func TestStore_GetMissingIsErrNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_TouchAccess(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	r := testRecord("u1", "note", nil)
	require.NoError(t, s.Append(ctx, r))

	require.NoError(t, s.TouchAccess(ctx, r.ID))
	require.NoError(t, s.TouchAccess(ctx, r.ID))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	assert.NotNil(t, got.LastAccessedAt)

	assert.ErrorIs(t, s.TouchAccess(ctx, "missing"), types.ErrNotFound)
}

func TestStore_ListByUserIsScopedAndNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	older := testRecord("u1", "older", nil)
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := testRecord("u1", "newer", nil)
	other := testRecord("u2", "someone else's", nil)
	require.NoError(t, s.Append(ctx, older))
	require.NoError(t, s.Append(ctx, newer))
	require.NoError(t, s.Append(ctx, other))

	got, err := s.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "newer", got[0].Text)
	assert.Equal(t, "older", got[1].Text)
}

func TestStore_VectorSearchRanksBySimilarity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	close1 := testRecord("u1", "close match", []float32{1, 0, 0})
	far := testRecord("u1", "far match", []float32{0, 1, 0})
	middle := testRecord("u1", "middle match", []float32{0.7, 0.7, 0})
	noEmbedding := testRecord("u1", "not embedded", nil)
	for _, r := range []*types.MemoryRecord{far, close1, middle, noEmbedding} {
		require.NoError(t, s.Append(ctx, r))
	}

	got, err := s.VectorSearch(ctx, "u1", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 3) // unembedded records are skipped
	assert.Equal(t, "close match", got[0].Text)
	assert.Equal(t, "middle match", got[1].Text)
	assert.Equal(t, "far match", got[2].Text)
}

func TestStore_VectorSearchHonorsLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(ctx, testRecord("u1", "r", []float32{1, 0, 0})))
	}

	got, err := s.VectorSearch(ctx, "u1", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStore_NeighborsOneHop(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddEntity(ctx, types.Entity{ID: "anna", Name: "Anna", Type: "person"}))
	require.NoError(t, s.AddEntity(ctx, types.Entity{ID: "jazz-club", Name: "Jazz Club", Type: "place"}))
	require.NoError(t, s.AddRelationship(ctx, types.Relationship{
		ID: uuid.NewString(), FromID: "anna", ToID: "jazz-club", Type: "frequents",
	}))

	direct := testRecord("u1", "Anna likes jazz", nil)
	direct.EntityRefs = []string{"anna"}
	oneHop := testRecord("u1", "The jazz club is on Mill Road", nil)
	oneHop.EntityRefs = []string{"jazz-club"}
	unrelated := testRecord("u1", "The car needs a service", nil)
	for _, r := range []*types.MemoryRecord{direct, oneHop, unrelated} {
		require.NoError(t, s.Append(ctx, r))
	}

	got, err := s.Neighbors(ctx, "u1", []string{"anna"}, []string{direct.ID}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, oneHop.ID, got[0].ID)
}

func TestStore_NeighborsEmptySeedIsEmpty(t *testing.T) {
	s := newStore(t)

	got, err := s.Neighbors(context.Background(), "u1", nil, nil, 10)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_TurnsRoundTripOldestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	msgs := []types.Message{
		{ID: uuid.NewString(), SessionID: "s1", UserID: "u1", Role: types.RoleUser, Text: "hello"},
		{ID: uuid.NewString(), SessionID: "s1", UserID: "u1", Role: types.RoleAssistant, Text: "hi"},
		{ID: uuid.NewString(), SessionID: "s2", UserID: "u1", Role: types.RoleUser, Text: "other session"},
	}
	for _, m := range msgs {
		require.NoError(t, s.AppendTurn(ctx, m))
	}

	got, err := s.RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, types.RoleUser, got[0].Role)
	assert.Equal(t, "hi", got[1].Text)
}
