package contextbuilder

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// TokenCounter counts prompt tokens. Uses the cl100k_base BPE when the
// encoding loads; otherwise falls back to the chars/4 heuristic, which
// overestimates slightly on English text and therefore never blows the
// budget.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter builds a counter. A failed encoding load is logged once
// and the heuristic path is used for the process lifetime.
func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("token encoding unavailable, using character heuristic")
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token count of text.
func (t *TokenCounter) Count(text string) int {
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}
