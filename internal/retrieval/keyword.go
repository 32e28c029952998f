package retrieval

import (
	"sort"
	"strings"
	"time"

	"github.com/zoehome/zoe/pkg/types"
)

// stopwords excluded from keyword matching; overlap on these says nothing
// about relevance.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "do": true, "does": true, "for": true,
	"from": true, "had": true, "has": true, "have": true, "i": true, "in": true,
	"is": true, "it": true, "my": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "was": true,
	"what": true, "whats": true, "when": true, "where": true, "which": true,
	"who": true, "with": true, "you": true, "your": true,
}

// contentWords tokenizes text down to lowercase non-stopword terms.
func contentWords(text string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if w == "" || stopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// keywordMatch scores records by content-word overlap with the query.
// Returns scored memories ordered best first; records with no overlap are
// dropped. This is the degraded-mode candidate source when the embedding
// backend is down.
func keywordMatch(query string, records []types.MemoryRecord, now time.Time, w weights, limit int) []types.ScoredMemory {
	queryWords := contentWords(query)
	if len(queryWords) == 0 {
		return nil
	}
	querySet := make(map[string]bool, len(queryWords))
	for _, qw := range queryWords {
		querySet[qw] = true
	}

	var out []types.ScoredMemory
	for i := range records {
		r := &records[i]
		matched := 0
		for _, word := range contentWords(r.Text) {
			if querySet[word] {
				matched++
				delete(querySet, word) // count each query term once
			}
		}
		// Restore the set for the next record.
		for _, qw := range queryWords {
			querySet[qw] = true
		}
		if matched == 0 {
			continue
		}

		components := types.ScoreComponents{
			Similarity: float64(matched) / float64(len(queryWords)),
			Recency:    recencyScore(r.CreatedAt, now),
			Importance: clamp01(r.Importance),
		}
		out = append(out, types.ScoredMemory{
			Memory:     r,
			Score:      w.blend(components),
			Components: components,
			Source:     "keyword",
		})
	}

	sortScored(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortScored orders by score descending with record ID as the tie-break,
// so equal-score results come back in the same order every time.
func sortScored(items []types.ScoredMemory) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Memory.ID < items[j].Memory.ID
	})
}
