package expert

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/pkg/types"
)

// PlannerExpert answers "plan my day" style requests with a deterministic
// digest of the user's calendar and open list items. It is read-only: both
// collaborator calls are summaries, and either may fail independently.
type PlannerExpert struct {
	tuning tuning
	api    *apiclient.Client
	log    zerolog.Logger
}

// NewPlannerExpert creates the planning expert.
func NewPlannerExpert(ft config.ExpertTuning, api *apiclient.Client) *PlannerExpert {
	builtin := tuning{
		triggers: []string{"plan my day", "what's my day look like", "whats my day look like", "what's on today", "whats on today", "my agenda"},
		keywords: []string{"plan", "agenda", "overview"},
	}
	return &PlannerExpert{
		tuning: resolveTuning(builtin, ft),
		api:    api,
		log:    log.With().Str("component", "expert").Str("expert", "planner").Logger(),
	}
}

// Name implements Expert.
func (e *PlannerExpert) Name() string { return "planner" }

// CanHandle implements Expert.
func (e *PlannerExpert) CanHandle(query string) float64 {
	return e.tuning.score(query)
}

// Execute implements Expert. Partial data still produces a useful digest;
// only the total loss of both sources is reported as a failure.
func (e *PlannerExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	var parts []string

	cal, calErr := e.api.GetCalendarSummary(ctx, userID)
	if calErr != nil {
		e.log.Warn().Err(calErr).Msg("calendar summary unavailable for plan")
	} else if cal.Upcoming == 0 {
		parts = append(parts, "Your calendar is clear.")
	} else {
		line := fmt.Sprintf("You have %d upcoming event(s)", cal.Upcoming)
		if cal.Urgent > 0 {
			line += fmt.Sprintf(", %d urgent", cal.Urgent)
		}
		if len(cal.Titles) > 0 {
			line += ": " + strings.Join(cal.Titles, ", ")
		}
		parts = append(parts, line+".")
	}

	lists, listErr := e.api.GetListsSummary(ctx, userID)
	if listErr != nil {
		e.log.Warn().Err(listErr).Msg("lists summary unavailable for plan")
	} else if lists.OpenItems == 0 {
		parts = append(parts, "No open list items.")
	} else {
		line := fmt.Sprintf("%d open list item(s)", lists.OpenItems)
		if lists.Overdue > 0 {
			line += fmt.Sprintf(", %d overdue", lists.Overdue)
		}
		parts = append(parts, line+".")
	}

	if len(parts) == 0 {
		err := calErr
		if err == nil {
			err = listErr
		}
		return failure("I couldn't reach your calendar or lists to build a plan.", err)
	}

	return types.ExecutionResult{
		Success:     true,
		Message:     "Here's your day: " + strings.Join(parts, " "),
		ActionTaken: "day_planned",
	}
}

var _ Expert = (*PlannerExpert)(nil)
