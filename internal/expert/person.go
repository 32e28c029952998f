package expert

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/pkg/types"
)

// personNoteRe captures "remember that Anna likes jazz": group 1 is the
// person, group 2 the fact. Only the verb is case-insensitive; the name
// must be capitalized, which is what distinguishes a person note from a
// general one.
var personNoteRe = regexp.MustCompile(`(?i:\b(?:remember|note)\s+that)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)(?:'s)?\s+(.+)$`)

// PersonExpert records facts about people in the user's life.
type PersonExpert struct {
	tuning tuning
	api    *apiclient.Client
	log    zerolog.Logger
}

// NewPersonExpert creates the person/memory expert.
func NewPersonExpert(ft config.ExpertTuning, api *apiclient.Client) *PersonExpert {
	builtin := tuning{
		triggers: []string{"remember that", "note that", "make a note that"},
		keywords: []string{"remember", "note"},
	}
	return &PersonExpert{
		tuning: resolveTuning(builtin, ft),
		api:    api,
		log:    log.With().Str("component", "expert").Str("expert", "person").Logger(),
	}
}

// Name implements Expert.
func (e *PersonExpert) Name() string { return "person" }

// CanHandle implements Expert.
func (e *PersonExpert) CanHandle(query string) float64 {
	return e.tuning.score(query)
}

// Execute implements Expert. When no capitalized name is found the note is
// stored against the user themselves, with an annotation so they can
// restate it if a person was intended.
func (e *PersonExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	person, note, parsed := extractPersonNote(query)

	n := apiclient.PersonNote{UserID: userID, Person: person, Note: note}
	if err := e.api.UpsertPersonNote(ctx, n); err != nil {
		e.log.Error().Err(err).Str("person", person).Msg("person note upsert failed")
		return failure("I couldn't save that note right now.", err)
	}

	var msg string
	if parsed {
		msg = fmt.Sprintf("Noted — I'll remember that about %s.", person)
	} else {
		msg = "Noted. I couldn't tell who this is about, so I filed it as a general note."
	}
	return types.ExecutionResult{
		Success:     true,
		Message:     msg,
		ActionTaken: "person_note_saved",
	}
}

// extractPersonNote pulls the person name and fact out of the query.
func extractPersonNote(query string) (person, note string, parsed bool) {
	if m := personNoteRe.FindStringSubmatch(strings.TrimSpace(query)); m != nil {
		return m[1], strings.TrimSpace(m[2]), true
	}

	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)
	for _, prefix := range []string{"remember that ", "note that ", "make a note that ", "remember ", "note "} {
		if strings.HasPrefix(lower, prefix) {
			q = strings.TrimSpace(q[len(prefix):])
			break
		}
	}
	return "", q, false
}

var _ Expert = (*PersonExpert)(nil)
