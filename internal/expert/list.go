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

// addToListRe captures "add <item> to my shopping list" style requests:
// group 1 is the item, group 2 the list name.
var addToListRe = regexp.MustCompile(`(?i)\b(?:add|put)\s+(.+?)\s+(?:to|on)\s+(?:my\s+|the\s+)?([a-z][a-z ]*?)\s+list\b`)

// ListExpert adds items to named lists (shopping, todo, packing, ...).
type ListExpert struct {
	tuning tuning
	api    *apiclient.Client
	log    zerolog.Logger
}

// NewListExpert creates the list expert with tuning from the experts file.
func NewListExpert(ft config.ExpertTuning, api *apiclient.Client) *ListExpert {
	builtin := tuning{
		triggers: []string{
			"add to my list",
			"to my shopping list",
			"to the shopping list",
			"to my todo list",
			"on my list",
		},
		keywords: []string{"list", "shopping", "groceries", "buy"},
	}
	return &ListExpert{
		tuning: resolveTuning(builtin, ft),
		api:    api,
		log:    log.With().Str("component", "expert").Str("expert", "list").Logger(),
	}
}

// Name implements Expert.
func (e *ListExpert) Name() string { return "list" }

// CanHandle implements Expert.
func (e *ListExpert) CanHandle(query string) float64 {
	// The structured "add X to Y list" form is the strongest signal of
	// all, even when no configured trigger phrase matches verbatim.
	if addToListRe.MatchString(query) {
		return e.tuning.triggerScore
	}
	return e.tuning.score(query)
}

// Execute implements Expert. Item and list name come from the structured
// form when present; otherwise the whole query minus filler becomes the
// item and the list defaults to "shopping".
func (e *ListExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	item, list, parsed := extractListItem(query)

	err := e.api.AddListItem(ctx, apiclient.ListItem{
		UserID: userID,
		List:   list,
		Item:   item,
	})
	if err != nil {
		e.log.Error().Err(err).Str("query", query).Msg("list item add failed")
		return failure(fmt.Sprintf("I couldn't add %q to your %s list right now.", item, list), err)
	}

	msg := fmt.Sprintf("Added %s to your %s list.", item, list)
	if !parsed {
		msg += " (I wasn't sure which list you meant, so I used shopping.)"
	}
	return types.ExecutionResult{
		Success:     true,
		Message:     msg,
		ActionTaken: "list_item_added",
	}
}

// extractListItem pulls the item and list name out of the query. The
// third return reports whether the structured form matched.
func extractListItem(query string) (item, list string, parsed bool) {
	if m := addToListRe.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(strings.ToLower(m[2])), true
	}

	// Fallback: strip the leading verb and trailing list talk.
	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)
	for _, prefix := range []string{"add ", "put ", "i need "} {
		if strings.HasPrefix(lower, prefix) {
			q = q[len(prefix):]
			break
		}
	}
	if idx := strings.Index(strings.ToLower(q), " to "); idx >= 0 {
		q = q[:idx]
	}
	return strings.TrimSpace(q), "shopping", false
}

var _ Expert = (*ListExpert)(nil)
