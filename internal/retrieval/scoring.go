package retrieval

import (
	"math"
	"time"

	"github.com/zoehome/zoe/pkg/types"
)

// recencyHalfLife is the age at which the recency component halves.
// Thirty days keeps month-old memories at half strength while a fact
// from yesterday scores near 1.0.
const recencyHalfLife = 30 * 24 * time.Hour

// recencyScore maps a record's age to (0,1] with exponential half-life
// decay. Future timestamps (clock skew) score 1.0.
func recencyScore(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1.0
	}
	return math.Exp2(-float64(age) / float64(recencyHalfLife))
}

// weights is the score blend configuration, normalized at construction.
type weights struct {
	similarity float64
	recency    float64
	importance float64
}

// blend combines the per-factor components into the final score. All
// components and weights live in [0,1] and the weights sum to 1.0, so the
// result is also in [0,1].
func (w weights) blend(c types.ScoreComponents) float64 {
	return w.similarity*c.Similarity + w.recency*c.Recency + w.importance*c.Importance
}

// clamp01 bounds a raw similarity into [0,1]. Cosine similarity of
// normalized text embeddings is non-negative in practice, but backends
// are not trusted to guarantee it.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
