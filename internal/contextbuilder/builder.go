// Package contextbuilder assembles the per-turn context bundle: retrieved
// memories, recent conversation turns, and collaborator summaries, fitted
// into a token budget. Sources are fetched concurrently and any source may
// fail without failing the build; a missing source is simply absent from
// the bundle.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/internal/retrieval"
	"github.com/zoehome/zoe/internal/storage"
	"github.com/zoehome/zoe/pkg/types"
)

// Builder assembles context bundles.
type Builder struct {
	retriever *retrieval.Retriever
	turns     storage.TurnStore
	api       *apiclient.Client
	counter   *TokenCounter
	cfg       config.ContextConfig
	log       zerolog.Logger
}

// New creates a builder. api may be nil, which omits collaborator
// summaries from every bundle.
func New(retriever *retrieval.Retriever, turns storage.TurnStore, api *apiclient.Client, cfg config.ContextConfig) *Builder {
	return &Builder{
		retriever: retriever,
		turns:     turns,
		api:       api,
		counter:   NewTokenCounter(),
		cfg:       cfg,
		log:       log.With().Str("component", "contextbuilder").Logger(),
	}
}

// Build fetches all context sources concurrently and assembles a bundle
// within the token budget. Memories are admitted best-score first until
// the budget is spent; turns and summaries are budgeted before memories
// since they are small and high-value.
func (b *Builder) Build(ctx context.Context, userID, sessionID, query string) (*types.ContextBundle, error) {
	bundle := &types.ContextBundle{Summaries: make(map[string]string)}

	var (
		memories types.RetrievalResult
		recent   []types.Message
		calendar *apiclient.CalendarSummary
		lists    *apiclient.ListsSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := b.retriever.Retrieve(gctx, userID, query)
		if err != nil {
			b.log.Warn().Err(err).Msg("memory retrieval failed, building context without memories")
			return nil
		}
		memories = result
		return nil
	})
	g.Go(func() error {
		turns, err := b.turns.RecentTurns(gctx, sessionID, b.cfg.RecentTurns)
		if err != nil {
			b.log.Warn().Err(err).Msg("recent turns unavailable")
			return nil
		}
		recent = turns
		return nil
	})
	if b.api != nil {
		g.Go(func() error {
			summary, err := b.api.GetCalendarSummary(gctx, userID)
			if err != nil {
				b.log.Debug().Err(err).Msg("calendar summary unavailable")
				return nil
			}
			calendar = summary
			return nil
		})
		g.Go(func() error {
			summary, err := b.api.GetListsSummary(gctx, userID)
			if err != nil {
				b.log.Debug().Err(err).Msg("lists summary unavailable")
				return nil
			}
			lists = summary
			return nil
		})
	}
	// Workers swallow their own errors; Wait only propagates ctx
	// cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	budget := b.cfg.TokenBudget

	if calendar != nil {
		s := b.formatCalendar(calendar)
		budget -= b.counter.Count(s)
		bundle.Summaries["calendar"] = s
	}
	if lists != nil {
		s := b.formatLists(lists)
		budget -= b.counter.Count(s)
		bundle.Summaries["lists"] = s
	}

	for _, turn := range recent {
		cost := b.counter.Count(turn.Text)
		if cost > budget {
			break
		}
		budget -= cost
		bundle.RecentTurns = append(bundle.RecentTurns, turn)
	}

	bundle.Memories = types.RetrievalResult{
		Query:    memories.Query,
		Degraded: memories.Degraded,
	}
	for _, m := range memories.Memories {
		cost := b.counter.Count(m.Memory.Text)
		if cost > budget {
			continue // a shorter lower-ranked memory may still fit
		}
		budget -= cost
		bundle.Memories.Memories = append(bundle.Memories.Memories, m)
	}

	return bundle, nil
}

// formatCalendar renders the calendar summary, compressing the title list
// to a count once it exceeds the compression threshold.
func (b *Builder) formatCalendar(s *apiclient.CalendarSummary) string {
	if s.Upcoming == 0 {
		return "Calendar: no upcoming events."
	}
	out := fmt.Sprintf("Calendar: %d upcoming event(s)", s.Upcoming)
	if s.Urgent > 0 {
		out += fmt.Sprintf(", %d urgent", s.Urgent)
	}
	if len(s.Titles) > 0 && len(s.Titles) <= b.cfg.SummaryCompressAt {
		out += ": " + strings.Join(s.Titles, ", ")
	}
	return out + "."
}

// formatLists renders the lists summary with the same compression rule.
func (b *Builder) formatLists(s *apiclient.ListsSummary) string {
	if s.OpenItems == 0 {
		return "Lists: nothing open."
	}
	out := fmt.Sprintf("Lists: %d open item(s)", s.OpenItems)
	if s.Overdue > 0 {
		out += fmt.Sprintf(", %d overdue", s.Overdue)
	}
	if len(s.Items) > 0 && len(s.Items) <= b.cfg.SummaryCompressAt {
		out += ": " + strings.Join(s.Items, ", ")
	}
	return out + "."
}

// Render flattens a bundle into the system-prompt context block the
// conversation engine appends after its instructions.
func Render(bundle *types.ContextBundle) string {
	var sb strings.Builder

	if len(bundle.Memories.Memories) > 0 {
		sb.WriteString("Relevant things you remember about this user:\n")
		for _, m := range bundle.Memories.Memories {
			sb.WriteString("- ")
			sb.WriteString(m.Memory.Text)
			sb.WriteByte('\n')
		}
	}

	for _, key := range []string{"calendar", "lists"} {
		if s, ok := bundle.Summaries[key]; ok {
			sb.WriteString(s)
			sb.WriteByte('\n')
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
