package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a backend's breaker is open and the call
// was rejected without being attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// breakerSettings tunes how quickly a backend is taken out of rotation.
// Three consecutive failures open the circuit; after 30 seconds a probe
// request is allowed through, and two probe successes close it again.
type breakerSettings struct {
	MaxFailures uint32
	OpenFor     time.Duration
	ProbeCount  uint32
}

func defaultBreakerSettings() breakerSettings {
	return breakerSettings{
		MaxFailures: 3,
		OpenFor:     30 * time.Second,
		ProbeCount:  2,
	}
}

// breaker wraps gobreaker for one named backend (chat, embedding,
// reranker). State transitions are logged so an operator can tell a slow
// backend from a rejected one.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(name string) *breaker {
	return newBreakerWithSettings(name, defaultBreakerSettings())
}

func newBreakerWithSettings(name string, s breakerSettings) *breaker {
	return &breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: s.ProbeCount,
			Timeout:     s.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("component", "llm").
					Str("backend", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state change")
			},
		}),
	}
}

// do runs fn through the breaker, honoring ctx cancellation before the
// attempt. gobreaker's ErrOpenState is translated to ErrCircuitOpen so
// callers can match on a package-local sentinel.
func (b *breaker) do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}
