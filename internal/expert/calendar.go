package expert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/pkg/types"
)

// CalendarExpert creates calendar events from scheduling requests.
type CalendarExpert struct {
	tuning tuning
	api    *apiclient.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewCalendarExpert creates the calendar expert.
func NewCalendarExpert(ft config.ExpertTuning, api *apiclient.Client) *CalendarExpert {
	builtin := tuning{
		triggers: []string{
			"add to my calendar",
			"to my calendar",
			"schedule a",
			"schedule an",
			"put on my calendar",
			"book a",
		},
		keywords: []string{"calendar", "schedule", "meeting", "appointment", "event"},
	}
	return &CalendarExpert{
		tuning: resolveTuning(builtin, ft),
		api:    api,
		log:    log.With().Str("component", "expert").Str("expert", "calendar").Logger(),
		now:    time.Now,
	}
}

// Name implements Expert.
func (e *CalendarExpert) Name() string { return "calendar" }

// CanHandle implements Expert.
func (e *CalendarExpert) CanHandle(query string) float64 {
	return e.tuning.score(query)
}

// Execute implements Expert. Without a parseable time the event is created
// all-day tomorrow with an annotation; a past time is kept literal.
func (e *CalendarExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	now := e.now()
	when, hasTime, remainder := ExtractTime(query, now)
	title := extractEventTitle(remainder)

	ev := apiclient.Event{UserID: userID, Title: title}
	if hasTime {
		ev.StartsAt = when.Format(time.RFC3339)
	} else {
		// Safe default: all-day tomorrow, flagged in the reply.
		tomorrow := now.AddDate(0, 0, 1)
		ev.StartsAt = time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, now.Location()).Format(time.RFC3339)
		ev.AllDay = true
	}

	if err := e.api.CreateEvent(ctx, ev); err != nil {
		e.log.Error().Err(err).Str("query", query).Msg("event create failed")
		return failure(fmt.Sprintf("I couldn't add %q to your calendar right now.", title), err)
	}

	var msg string
	switch {
	case hasTime && when.Before(now):
		msg = fmt.Sprintf("Added %s to your calendar for %s. Note that this time is in the past.",
			title, when.Format("Mon Jan 2 15:04"))
	case hasTime:
		msg = fmt.Sprintf("Added %s to your calendar for %s.", title, when.Format("Mon Jan 2 15:04"))
	default:
		msg = fmt.Sprintf("Added %s to your calendar as an all-day event tomorrow — I couldn't find a time in your message.", title)
	}

	return types.ExecutionResult{
		Success:     true,
		Message:     msg,
		ActionTaken: "event_created",
	}
}

// extractEventTitle strips scheduling framing from the time-stripped query.
func extractEventTitle(remainder string) string {
	q := strings.TrimSpace(remainder)
	lower := strings.ToLower(q)
	for _, prefix := range []string{
		"add ", "schedule a ", "schedule an ", "schedule ", "book a ", "book an ", "book ", "put ",
	} {
		if strings.HasPrefix(lower, prefix) {
			q = strings.TrimSpace(q[len(prefix):])
			lower = strings.ToLower(q)
			break
		}
	}
	for _, marker := range []string{" to my calendar", " on my calendar", " to the calendar"} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			q = strings.TrimSpace(q[:idx])
			break
		}
	}
	if q == "" {
		return "event"
	}
	return q
}

var _ Expert = (*CalendarExpert)(nil)
