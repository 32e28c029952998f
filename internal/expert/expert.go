// Package expert implements the domain experts: small classifier+executor
// pairs that recognize an intent in a natural-language message and carry
// out one concrete action against a backing collaborator API.
//
// Classification (CanHandle) is a pure function over the query text and
// must stay cheap: the orchestrator calls it for every registered expert
// on every message. Execution performs the side effect and translates all
// I/O failures into a failed ExecutionResult; nothing propagates past that
// boundary.
package expert

import (
	"context"
	"strings"

	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/pkg/types"
)

// Expert is one domain intent classifier and action executor.
type Expert interface {
	// Name returns the unique expert name used for registry lookups and
	// tuning-file keys.
	Name() string

	// CanHandle returns a confidence in [0,1] that this expert should
	// execute the query. Pure, no I/O.
	CanHandle(query string) float64

	// Execute performs the action for the query on behalf of userID.
	// Failures are reported through the result, never panicked.
	Execute(ctx context.Context, query, userID string) types.ExecutionResult
}

// Default confidence levels, applied when the tuning file leaves a score
// unset. Trigger phrases are near-certain intent; keyword overlap is only
// a topical hint.
const (
	defaultTriggerScore = 0.9
	defaultKeywordScore = 0.4
)

// tuning is the resolved per-expert confidence configuration.
type tuning struct {
	triggers     []string
	keywords     []string
	triggerScore float64
	keywordScore float64
}

// resolveTuning merges the built-in trigger/keyword sets with the experts
// file. File entries replace the built-in phrase lists entirely when
// present, so operators can retune an expert without code.
func resolveTuning(builtin tuning, fileTuning config.ExpertTuning) tuning {
	t := builtin
	if len(fileTuning.Triggers) > 0 {
		t.triggers = fileTuning.Triggers
	}
	if len(fileTuning.Keywords) > 0 {
		t.keywords = fileTuning.Keywords
	}
	if fileTuning.TriggerScore > 0 {
		t.triggerScore = fileTuning.TriggerScore
	}
	if fileTuning.KeywordScore > 0 {
		t.keywordScore = fileTuning.KeywordScore
	}
	if t.triggerScore == 0 {
		t.triggerScore = defaultTriggerScore
	}
	if t.keywordScore == 0 {
		t.keywordScore = defaultKeywordScore
	}
	return t
}

// score classifies the query against the tuning: a trigger-phrase hit
// returns the high fixed score, keyword overlap returns the lower score
// scaled up slightly with extra matches, anything else returns 0.
func (t tuning) score(query string) float64 {
	q := strings.ToLower(query)

	for _, phrase := range t.triggers {
		if strings.Contains(q, phrase) {
			return t.triggerScore
		}
	}

	matched := 0
	for _, kw := range t.keywords {
		if containsWord(q, kw) {
			matched++
		}
	}
	if matched == 0 {
		return 0.0
	}

	// Each keyword beyond the first adds a small bump, capped below the
	// trigger score so keywords alone never outrank an explicit phrase.
	s := t.keywordScore + float64(matched-1)*0.1
	if s >= t.triggerScore {
		s = t.triggerScore - 0.05
	}
	if s > 1.0 {
		s = 1.0
	}
	return s
}

// containsWord reports whether q contains w as a whole word.
func containsWord(q, w string) bool {
	for _, field := range strings.FieldsFunc(q, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
	}) {
		if field == w {
			return true
		}
	}
	return false
}

// failure builds the failed ExecutionResult for an upstream error. The
// user sees a plain-language message; the raw error stays in the Error
// field for logging.
func failure(userMessage string, err error) types.ExecutionResult {
	return types.ExecutionResult{
		Success: false,
		Message: userMessage,
		Error:   err.Error(),
	}
}
