package expert

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/pkg/types"
)

// JournalExpert appends entries to the user's journal.
type JournalExpert struct {
	tuning tuning
	api    *apiclient.Client
	log    zerolog.Logger
}

// NewJournalExpert creates the journal expert.
func NewJournalExpert(ft config.ExpertTuning, api *apiclient.Client) *JournalExpert {
	builtin := tuning{
		triggers: []string{"journal entry", "write in my journal", "add to my journal", "dear diary", "log my day"},
		keywords: []string{"journal", "diary"},
	}
	return &JournalExpert{
		tuning: resolveTuning(builtin, ft),
		api:    api,
		log:    log.With().Str("component", "expert").Str("expert", "journal").Logger(),
	}
}

// Name implements Expert.
func (e *JournalExpert) Name() string { return "journal" }

// CanHandle implements Expert.
func (e *JournalExpert) CanHandle(query string) float64 {
	return e.tuning.score(query)
}

// Execute implements Expert. The entry body is the query minus the journal
// framing; a detected mood word is passed along as metadata.
func (e *JournalExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	text := extractJournalText(query)

	entry := apiclient.JournalEntry{
		UserID: userID,
		Text:   text,
		Mood:   detectMood(text),
	}
	if err := e.api.CreateJournalEntry(ctx, entry); err != nil {
		e.log.Error().Err(err).Msg("journal entry create failed")
		return failure("I couldn't save that journal entry right now.", err)
	}

	return types.ExecutionResult{
		Success:     true,
		Message:     "Saved to your journal.",
		ActionTaken: "journal_entry_created",
	}
}

// extractJournalText strips the journal framing, keeping the body.
func extractJournalText(query string) string {
	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)
	for _, prefix := range []string{
		"journal entry:", "journal entry", "write in my journal:", "write in my journal",
		"add to my journal:", "add to my journal", "dear diary,", "dear diary", "log my day:",
	} {
		if strings.HasPrefix(lower, prefix) {
			q = strings.TrimSpace(q[len(prefix):])
			break
		}
	}
	if q == "" {
		return query
	}
	return q
}

// detectMood maps obvious sentiment words to a coarse mood label. Empty
// when nothing matches; the journal service treats mood as optional.
func detectMood(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "great", "happy", "wonderful", "amazing", "excited"):
		return "positive"
	case containsAny(lower, "sad", "tired", "stressed", "awful", "terrible", "anxious"):
		return "negative"
	default:
		return ""
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if containsWord(s, w) {
			return true
		}
	}
	return false
}

var _ Expert = (*JournalExpert)(nil)
