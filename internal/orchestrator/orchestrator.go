// Package orchestrator owns the expert registry and decides, per message,
// whether a domain expert executes a concrete action or the message falls
// through to the conversational LLM path.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/expert"
	"github.com/zoehome/zoe/pkg/types"
)

// Registry holds the registered experts in registration order. It is
// constructed once at startup and read-only afterwards, so routing needs
// no locking.
type Registry struct {
	experts []expert.Expert
	byName  map[string]expert.Expert
}

// NewRegistry builds a registry from the given experts. Duplicate names or
// an empty set are configuration errors: the caller should refuse to start
// rather than run with an ambiguous or useless registry.
func NewRegistry(experts ...expert.Expert) (*Registry, error) {
	if len(experts) == 0 {
		return nil, fmt.Errorf("orchestrator: no experts registered")
	}
	r := &Registry{byName: make(map[string]expert.Expert, len(experts))}
	for _, e := range experts {
		if _, dup := r.byName[e.Name()]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate expert name %q", e.Name())
		}
		r.byName[e.Name()] = e
		r.experts = append(r.experts, e)
	}
	return r, nil
}

// Experts returns the registered experts in registration order.
func (r *Registry) Experts() []expert.Expert {
	return r.experts
}

// Orchestrator routes messages to experts.
type Orchestrator struct {
	registry  *Registry
	threshold float64
	log       zerolog.Logger
}

// New creates an orchestrator over the registry with the given execution
// threshold.
func New(registry *Registry, threshold float64) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		threshold: threshold,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// Decision is the outcome of scoring one query against all experts.
type Decision struct {
	// Winner is the selected expert; nil when no expert reached the
	// threshold.
	Winner expert.Expert

	// Confidence is the winner's score (or the best below-threshold
	// score when Winner is nil).
	Confidence float64
}

// Route scores every registered expert against the query and picks the
// winner. Scores are independent, so evaluation order does not affect
// them; ties at the maximum are broken by registration order via the
// strict > comparison below, which keeps routing deterministic.
func (o *Orchestrator) Route(query string) Decision {
	var best expert.Expert
	bestScore := 0.0

	for _, e := range o.registry.Experts() {
		score := e.CanHandle(query)
		if score < 0 || score > 1 {
			// Defect in the expert; clamp rather than let a bad score
			// hijack routing.
			o.log.Error().Str("expert", e.Name()).Float64("score", score).Msg("confidence out of bounds")
			if score < 0 {
				score = 0
			} else {
				score = 1
			}
		}
		if score > bestScore {
			best = e
			bestScore = score
		}
	}

	if best == nil || bestScore < o.threshold {
		return Decision{Confidence: bestScore}
	}
	return Decision{Winner: best, Confidence: bestScore}
}

// Handle routes the query and, when an expert wins, executes it. It
// returns (result, nil) for the expert fast path — including expert
// failures, which are surfaced to the user rather than re-routed to the
// LLM — and (zero, ErrNoExpertMatch) when the caller should take the
// conversational path.
func (o *Orchestrator) Handle(ctx context.Context, query, userID string) (types.ExecutionResult, error) {
	decision := o.Route(query)
	if decision.Winner == nil {
		o.log.Debug().Float64("best_score", decision.Confidence).Msg("no expert match")
		return types.ExecutionResult{}, types.ErrNoExpertMatch
	}

	o.log.Info().
		Str("expert", decision.Winner.Name()).
		Float64("confidence", decision.Confidence).
		Msg("expert selected")

	result := decision.Winner.Execute(ctx, query, userID)
	if !result.Success {
		o.log.Error().
			Str("expert", decision.Winner.Name()).
			Str("query", query).
			Str("error", result.Error).
			Msg("expert execution failed")
	}
	return result, nil
}

// Threshold returns the configured execution threshold.
func (o *Orchestrator) Threshold() float64 {
	return o.threshold
}
