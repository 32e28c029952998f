package expert

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/pkg/types"
)

// birthdayRe captures "Anna's birthday is March 12" and "Anna's birthday
// is on 12 March". The name must be capitalized; "my birthday is ..." is
// deliberately not a match, since there is no person to file it under.
var birthdayRe = regexp.MustCompile(`\b([A-Z][a-z]+)(?:'s)?\s+(?i:birthday\s+is\s+(?:on\s+)?)(.+)$`)

// Month-day forms the date grammar accepts, tried in order.
var birthdayLayouts = []string{"January 2", "2 January", "Jan 2", "2 Jan", "01/02", "1/2"}

// BirthdayExpert records birthdays: a person note plus an all-day calendar
// event at the next occurrence.
type BirthdayExpert struct {
	tuning tuning
	api    *apiclient.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewBirthdayExpert creates the birthday expert.
func NewBirthdayExpert(ft config.ExpertTuning, api *apiclient.Client) *BirthdayExpert {
	builtin := tuning{
		triggers: []string{"birthday is"},
		keywords: []string{"birthday"},
	}
	return &BirthdayExpert{
		tuning: resolveTuning(builtin, ft),
		api:    api,
		log:    log.With().Str("component", "expert").Str("expert", "birthday").Logger(),
		now:    time.Now,
	}
}

// Name implements Expert.
func (e *BirthdayExpert) Name() string { return "birthday" }

// CanHandle implements Expert.
func (e *BirthdayExpert) CanHandle(query string) float64 {
	return e.tuning.score(query)
}

// Execute implements Expert. The note is always saved; the calendar event
// is only created when the date parses, and a calendar failure does not
// undo the saved note.
func (e *BirthdayExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	person, dateText, ok := extractBirthday(query)
	if !ok {
		return types.ExecutionResult{
			Success:     true,
			Message:     "I can remember a birthday if you tell me whose it is, e.g. \"Anna's birthday is March 12\".",
			ActionTaken: "birthday_clarification_needed",
		}
	}

	note := apiclient.PersonNote{
		UserID: userID,
		Person: person,
		Note:   "birthday: " + dateText,
	}
	if err := e.api.UpsertPersonNote(ctx, note); err != nil {
		e.log.Error().Err(err).Str("person", person).Msg("birthday note failed")
		return failure(fmt.Sprintf("I couldn't save %s's birthday right now.", person), err)
	}

	when, parsed := parseBirthdayDate(dateText, e.now())
	if !parsed {
		return types.ExecutionResult{
			Success:     true,
			Message:     fmt.Sprintf("Saved %s's birthday as %q — I couldn't turn that into a calendar date, so no event was created.", person, dateText),
			ActionTaken: "birthday_saved",
		}
	}

	ev := apiclient.Event{
		UserID:   userID,
		Title:    person + "'s birthday",
		StartsAt: when.Format(time.RFC3339),
		AllDay:   true,
	}
	if err := e.api.CreateEvent(ctx, ev); err != nil {
		e.log.Warn().Err(err).Str("person", person).Msg("birthday event create failed")
		return types.ExecutionResult{
			Success:     true,
			Message:     fmt.Sprintf("Saved %s's birthday, but I couldn't add it to your calendar.", person),
			ActionTaken: "birthday_saved",
		}
	}

	return types.ExecutionResult{
		Success:     true,
		Message:     fmt.Sprintf("Saved %s's birthday and added it to your calendar for %s.", person, when.Format("January 2")),
		ActionTaken: "birthday_saved",
	}
}

// extractBirthday pulls the person and raw date text out of the query.
func extractBirthday(query string) (person, dateText string, ok bool) {
	if m := birthdayRe.FindStringSubmatch(strings.TrimSpace(query)); m != nil {
		return m[1], strings.TrimSpace(strings.TrimSuffix(m[2], ".")), true
	}
	return "", "", false
}

// parseBirthdayDate resolves a month-day expression to its next occurrence
// at or after today.
func parseBirthdayDate(text string, now time.Time) (time.Time, bool) {
	for _, layout := range birthdayLayouts {
		parsed, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		when := time.Date(now.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, now.Location())
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if when.Before(today) {
			when = when.AddDate(1, 0, 0)
		}
		return when, true
	}
	return time.Time{}, false
}

var _ Expert = (*BirthdayExpert)(nil)
