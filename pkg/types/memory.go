package types

import "time"

// MemoryRecord is a stored fact, note, or episode usable as retrieval
// context. Records are created by the external ingestion path and are
// read-only here except for decay bookkeeping.
type MemoryRecord struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`

	// Embedding is the vector representation of Text. May be empty when
	// the embedding backfill has not run; such records still participate
	// in keyword matching.
	Embedding []float32 `json:"embedding,omitempty"`

	// EmbeddingModel names the model that produced Embedding.
	EmbeddingModel string `json:"embedding_model,omitempty"`

	// Importance is a stored weight in [0,1] assigned at ingestion time.
	Importance float64 `json:"importance"`

	// EntityRefs lists IDs of entities mentioned by this record. Used for
	// one-hop graph expansion during retrieval.
	EntityRefs []string `json:"entity_refs,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Quality signals maintained by the store.
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// ScoredMemory pairs a memory with its retrieval score. Produced fresh
// per query, never persisted.
type ScoredMemory struct {
	Memory *MemoryRecord `json:"memory"`

	// Score is the blended relevance score in [0,1].
	Score float64 `json:"score"`

	// Components breaks the score down for debugging and tests.
	Components ScoreComponents `json:"components"`

	// Source records which pipeline stage admitted this candidate:
	// "vector", "keyword", or "graph".
	Source string `json:"source"`
}

// ScoreComponents is the per-factor breakdown of a retrieval score.
type ScoreComponents struct {
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
}

// RetrievalResult is the ranked output of one retrieval pass.
type RetrievalResult struct {
	Query    string         `json:"query"`
	Memories []ScoredMemory `json:"memories"`

	// Degraded is true when the embedding or reranker backend was
	// unavailable and the retriever fell back to keyword matching.
	Degraded bool `json:"degraded"`
}

// ContextBundle aggregates everything the conversation engine feeds to the
// LLM for one turn. Built once per request and consumed immediately.
type ContextBundle struct {
	Memories    RetrievalResult   `json:"memories"`
	RecentTurns []Message         `json:"recent_turns"`
	Summaries   map[string]string `json:"summaries"`
}
