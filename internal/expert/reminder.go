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

// ReminderExpert creates reminders, extracting the task text and
// normalizing any time expression to a canonical timestamp.
type ReminderExpert struct {
	tuning tuning
	api    *apiclient.Client
	log    zerolog.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewReminderExpert creates the reminder expert.
func NewReminderExpert(ft config.ExpertTuning, api *apiclient.Client) *ReminderExpert {
	builtin := tuning{
		triggers: []string{"remind me", "set a reminder", "don't let me forget", "dont let me forget"},
		keywords: []string{"remind", "reminder", "forget"},
	}
	return &ReminderExpert{
		tuning: resolveTuning(builtin, ft),
		api:    api,
		log:    log.With().Str("component", "expert").Str("expert", "reminder").Logger(),
		now:    time.Now,
	}
}

// Name implements Expert.
func (e *ReminderExpert) Name() string { return "reminder" }

// CanHandle implements Expert.
func (e *ReminderExpert) CanHandle(query string) float64 {
	return e.tuning.score(query)
}

// Execute implements Expert. A query with no parseable time still creates
// the reminder — with no due time and an annotation — rather than failing;
// a time in the past is used literally so the user can correct it.
func (e *ReminderExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	now := e.now()
	when, hasTime, remainder := ExtractTime(query, now)
	task := extractReminderTask(remainder)

	reminder := apiclient.Reminder{UserID: userID, Text: task}
	if hasTime {
		reminder.DueAt = when.Format(time.RFC3339)
	}

	if err := e.api.CreateReminder(ctx, reminder); err != nil {
		e.log.Error().Err(err).Str("query", query).Msg("reminder create failed")
		return failure("I couldn't set that reminder right now.", err)
	}

	var msg string
	switch {
	case hasTime && when.Before(now):
		msg = fmt.Sprintf("Reminder set: %s at %s. Note that this time is in the past.",
			task, when.Format("Mon Jan 2 15:04"))
	case hasTime:
		msg = fmt.Sprintf("Reminder set: %s at %s.", task, when.Format("Mon Jan 2 15:04"))
	default:
		msg = fmt.Sprintf("Reminder set: %s. I couldn't find a time, so it has no specific time.", task)
	}

	return types.ExecutionResult{
		Success:     true,
		Message:     msg,
		ActionTaken: "reminder_created",
	}
}

// extractReminderTask strips the reminder framing ("remind me to ...")
// from the already time-stripped query.
func extractReminderTask(remainder string) string {
	q := strings.TrimSpace(remainder)
	lower := strings.ToLower(q)
	for _, prefix := range []string{
		"remind me to ",
		"remind me about ",
		"remind me ",
		"set a reminder to ",
		"set a reminder for ",
		"set a reminder ",
		"don't let me forget to ",
		"dont let me forget to ",
	} {
		if strings.HasPrefix(lower, prefix) {
			q = strings.TrimSpace(q[len(prefix):])
			break
		}
	}
	if q == "" {
		return "reminder"
	}
	return q
}

var _ Expert = (*ReminderExpert)(nil)
