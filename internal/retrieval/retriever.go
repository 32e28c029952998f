// Package retrieval implements the hybrid memory retrieval pipeline:
// vector candidates blended with recency and importance, optional graph
// expansion and cross-encoder reranking, and a keyword fallback that
// keeps recall working when the embedding backend is down.
package retrieval

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/internal/llm"
	"github.com/zoehome/zoe/internal/storage"
	"github.com/zoehome/zoe/pkg/types"
)

// keywordScanLimit caps how many records the degraded path loads for
// in-process matching.
const keywordScanLimit = 2000

// Retriever runs the retrieval pipeline. Construct with New; the zero
// value is not usable.
type Retriever struct {
	store    storage.MemoryStore
	search   storage.SearchProvider
	graph    storage.GraphProvider
	embedder llm.EmbeddingModel
	reranker llm.Reranker

	cfg config.RetrievalConfig
	w   weights

	now func() time.Time
	log zerolog.Logger
}

// New creates a retriever. graph and reranker may be nil, which disables
// the corresponding stages regardless of the config flags.
func New(store storage.MemoryStore, search storage.SearchProvider, graph storage.GraphProvider,
	embedder llm.EmbeddingModel, reranker llm.Reranker, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{
		store:    store,
		search:   search,
		graph:    graph,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
		w: weights{
			similarity: cfg.SimilarityWeight,
			recency:    cfg.RecencyWeight,
			importance: cfg.ImportanceWeight,
		},
		now: time.Now,
		log: log.With().Str("component", "retrieval").Logger(),
	}
}

// Retrieve runs the full pipeline for one query. The result holds at most
// MaxResults memories, best first, and Degraded=true when a backend outage
// forced the keyword fallback or skipped reranking. An empty query yields
// an empty result.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string) (types.RetrievalResult, error) {
	result := types.RetrievalResult{Query: query}
	if query == "" {
		return result, nil
	}
	now := r.now()

	variants := []string{query}
	if r.cfg.EnableExpansion {
		variants = expandQuery(query)
	}

	candidates, embedOK := r.vectorCandidates(ctx, userID, variants, now)
	if !embedOK {
		// Embedding backend down: keyword fallback over recent records.
		result.Degraded = true
		records, err := r.store.ListByUser(ctx, userID, keywordScanLimit)
		if err != nil {
			return result, err
		}
		result.Memories = keywordMatch(query, records, now, r.w, r.cfg.MaxResults)
		r.touchAll(ctx, result.Memories)
		return result, nil
	}

	if r.cfg.EnableGraph && r.graph != nil {
		r.expandGraph(ctx, userID, candidates, now)
	}

	ranked := make([]types.ScoredMemory, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, *c)
	}
	sortScored(ranked)
	if len(ranked) > r.cfg.CandidateK {
		ranked = ranked[:r.cfg.CandidateK]
	}

	if r.cfg.EnableRerank && r.reranker != nil && len(ranked) > 1 {
		reranked, err := r.rerank(ctx, query, ranked)
		if err != nil {
			r.log.Warn().Err(err).Msg("reranker unavailable, keeping blended order")
			result.Degraded = true
		} else {
			ranked = reranked
		}
	}

	if len(ranked) > r.cfg.MaxResults {
		ranked = ranked[:r.cfg.MaxResults]
	}
	result.Memories = ranked
	r.touchAll(ctx, result.Memories)
	return result, nil
}

// vectorCandidates embeds each query variant, searches, and merges the
// candidates keeping the best similarity per record. Returns ok=false only
// when the original query could not be embedded; failed variants are
// skipped.
func (r *Retriever) vectorCandidates(ctx context.Context, userID string, variants []string, now time.Time) (map[string]*types.ScoredMemory, bool) {
	candidates := make(map[string]*types.ScoredMemory)

	for i, variant := range variants {
		vec, err := r.embedder.Embed(ctx, variant)
		if err != nil {
			if i == 0 {
				r.log.Warn().Err(err).Msg("embedding backend unavailable, falling back to keyword match")
				return nil, false
			}
			r.log.Debug().Err(err).Str("variant", variant).Msg("skipping expansion variant")
			continue
		}

		records, err := r.search.VectorSearch(ctx, userID, vec, r.cfg.CandidateK)
		if err != nil {
			if i == 0 {
				r.log.Warn().Err(err).Msg("vector search unavailable, falling back to keyword match")
				return nil, false
			}
			continue
		}

		for j := range records {
			rec := records[j]
			sim := clamp01(cosine(vec, rec.Embedding))
			if existing, ok := candidates[rec.ID]; ok {
				if sim > existing.Components.Similarity {
					existing.Components.Similarity = sim
					existing.Score = r.w.blend(existing.Components)
				}
				continue
			}
			components := types.ScoreComponents{
				Similarity: sim,
				Recency:    recencyScore(rec.CreatedAt, now),
				Importance: clamp01(rec.Importance),
			}
			recCopy := rec
			candidates[rec.ID] = &types.ScoredMemory{
				Memory:     &recCopy,
				Score:      r.w.blend(components),
				Components: components,
				Source:     "vector",
			}
		}
	}
	return candidates, true
}

// expandGraph admits records one entity hop away from the current
// candidates, scored at a GraphWeight discount off their own blend so a
// graph neighbor never outranks the direct hit that admitted it.
func (r *Retriever) expandGraph(ctx context.Context, userID string, candidates map[string]*types.ScoredMemory, now time.Time) {
	entitySet := make(map[string]bool)
	exclude := make([]string, 0, len(candidates))
	for id, c := range candidates {
		exclude = append(exclude, id)
		for _, ref := range c.Memory.EntityRefs {
			entitySet[ref] = true
		}
	}
	if len(entitySet) == 0 {
		return
	}
	entityIDs := make([]string, 0, len(entitySet))
	for id := range entitySet {
		entityIDs = append(entityIDs, id)
	}

	neighbors, err := r.graph.Neighbors(ctx, userID, entityIDs, exclude, r.cfg.CandidateK)
	if err != nil {
		r.log.Warn().Err(err).Msg("graph expansion failed, continuing without it")
		return
	}

	for i := range neighbors {
		rec := neighbors[i]
		if _, ok := candidates[rec.ID]; ok {
			continue
		}
		components := types.ScoreComponents{
			Recency:    recencyScore(rec.CreatedAt, now),
			Importance: clamp01(rec.Importance),
		}
		candidates[rec.ID] = &types.ScoredMemory{
			Memory:     &rec,
			Score:      r.cfg.GraphWeight * r.w.blend(components),
			Components: components,
			Source:     "graph",
		}
	}
}

// rerank rescores the candidates with the cross-encoder and blends the
// result evenly with the existing score, so a reranker that disagrees
// wildly with the vector stage moves results without fully overriding
// recency and importance.
func (r *Retriever) rerank(ctx context.Context, query string, ranked []types.ScoredMemory) ([]types.ScoredMemory, error) {
	texts := make([]string, len(ranked))
	for i, s := range ranked {
		texts[i] = s.Memory.Text
	}
	scores, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	out := make([]types.ScoredMemory, len(ranked))
	copy(out, ranked)
	for i := range out {
		out[i].Score = 0.5*out[i].Score + 0.5*clamp01(scores[i])
	}
	sortScored(out)
	return out, nil
}

// touchAll records access bookkeeping for every returned memory.
// Best-effort: a failed touch never fails the retrieval.
func (r *Retriever) touchAll(ctx context.Context, memories []types.ScoredMemory) {
	for _, m := range memories {
		if err := r.store.TouchAccess(ctx, m.Memory.ID); err != nil {
			r.log.Debug().Err(err).Str("memory_id", m.Memory.ID).Msg("access touch failed")
		}
	}
}

// cosine returns the cosine similarity of two vectors, 0 on dimension
// mismatch or zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
