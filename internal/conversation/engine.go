// Package conversation is the turn engine: each incoming message is
// routed to a domain expert for a deterministic fast path, or falls
// through to the LLM with assembled memory context. Turns within a
// session are processed strictly in order.
package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/contextbuilder"
	"github.com/zoehome/zoe/internal/llm"
	"github.com/zoehome/zoe/internal/orchestrator"
	"github.com/zoehome/zoe/internal/session"
	"github.com/zoehome/zoe/internal/storage"
	"github.com/zoehome/zoe/pkg/types"
)

const systemPrompt = `You are Zoe, a warm and practical household assistant. You help one family with their daily life: lists, calendar, reminders, and remembering the things they tell you.

Ground your answers in the context below when it is relevant. If the context does not cover the question, say you don't know rather than guessing. Keep replies short and conversational.`

// unavailableReply is sent when the LLM backend is down. The expert fast
// path keeps working through an outage, so the reply points there.
const unavailableReply = "Sorry, I'm having trouble thinking right now. I can still handle lists, reminders, and calendar requests directly, or you can try again in a moment."

// Reply is the outcome of one conversation turn.
type Reply struct {
	// Text is the assistant's reply.
	Text string `json:"text"`

	// Source is "expert" for the deterministic fast path, "llm" for the
	// conversational path.
	Source string `json:"source"`

	// Expert and ActionTaken are set on the fast path.
	Expert      string `json:"expert,omitempty"`
	ActionTaken string `json:"action_taken,omitempty"`

	// Degraded is true when retrieval ran in keyword-fallback mode or the
	// LLM was unavailable.
	Degraded bool `json:"degraded,omitempty"`
}

// Engine processes conversation turns.
type Engine struct {
	orch     *orchestrator.Orchestrator
	builder  *contextbuilder.Builder
	chat     llm.ChatModel
	turns    storage.TurnStore
	sessions *session.Serializer
	log      zerolog.Logger
}

// New creates an engine.
func New(orch *orchestrator.Orchestrator, builder *contextbuilder.Builder, chat llm.ChatModel, turns storage.TurnStore) *Engine {
	return &Engine{
		orch:     orch,
		builder:  builder,
		chat:     chat,
		turns:    turns,
		sessions: session.NewSerializer(),
		log:      log.With().Str("component", "conversation").Logger(),
	}
}

// Chat processes one turn and returns the complete reply. Turns in the
// same session are serialized; concurrent sessions are independent.
func (e *Engine) Chat(ctx context.Context, userID, sessionID, text string) (*Reply, error) {
	unlock := e.sessions.Lock(sessionID)
	defer unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return &Reply{Text: "Say something and I'll do my best to help.", Source: "llm"}, nil
	}

	if reply, handled := e.tryExpert(ctx, userID, text); handled {
		e.recordTurn(ctx, userID, sessionID, types.RoleUser, text)
		e.recordTurn(ctx, userID, sessionID, types.RoleAssistant, reply.Text)
		return reply, nil
	}

	// The user turn is recorded after context assembly so the prompt's
	// replayed history does not duplicate the current message.
	reply, err := e.llmReply(ctx, userID, sessionID, text)
	if err != nil {
		return nil, err
	}
	e.recordTurn(ctx, userID, sessionID, types.RoleAssistant, reply.Text)
	return reply, nil
}

// ChatStream processes one turn, streaming the reply token by token. The
// expert fast path and error replies arrive as a single chunk. The
// returned channel is closed after the final chunk; cancelling ctx
// abandons the stream.
func (e *Engine) ChatStream(ctx context.Context, userID, sessionID, text string) (<-chan llm.StreamChunk, error) {
	unlock := e.sessions.Lock(sessionID)

	text = strings.TrimSpace(text)
	if text == "" {
		unlock()
		return oneChunk("Say something and I'll do my best to help."), nil
	}

	if reply, handled := e.tryExpert(ctx, userID, text); handled {
		e.recordTurn(ctx, userID, sessionID, types.RoleUser, text)
		e.recordTurn(ctx, userID, sessionID, types.RoleAssistant, reply.Text)
		unlock()
		return oneChunk(reply.Text), nil
	}

	messages, err := e.buildMessages(ctx, userID, sessionID, text)
	if err != nil {
		unlock()
		return nil, err
	}
	e.recordTurn(ctx, userID, sessionID, types.RoleUser, text)

	stream, err := e.chat.ChatStream(ctx, messages)
	if err != nil {
		e.log.Warn().Err(err).Msg("llm stream unavailable")
		e.recordTurn(ctx, userID, sessionID, types.RoleAssistant, unavailableReply)
		unlock()
		return oneChunk(unavailableReply), nil
	}

	// Relay the stream, accumulating the full reply so it lands in the
	// turn store once generation finishes. The session stays locked until
	// the stream ends.
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer unlock()
		var full strings.Builder
		for chunk := range stream {
			if chunk.Token != "" {
				full.WriteString(chunk.Token)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if full.Len() > 0 {
			// Persist with a fresh context so cancellation of the
			// request does not lose the turn.
			e.recordTurn(context.WithoutCancel(ctx), userID, sessionID, types.RoleAssistant, full.String())
		}
	}()
	return out, nil
}

// tryExpert runs the orchestrator fast path. handled is false only when no
// expert reached the threshold. Expert failures stay on the fast path:
// the failure message is surfaced rather than re-asked of the LLM.
func (e *Engine) tryExpert(ctx context.Context, userID, text string) (*Reply, bool) {
	result, err := e.orch.Handle(ctx, text, userID)
	if errors.Is(err, types.ErrNoExpertMatch) {
		return nil, false
	}
	decision := e.orch.Route(text)
	return &Reply{
		Text:        result.Message,
		Source:      "expert",
		Expert:      decision.Winner.Name(),
		ActionTaken: result.ActionTaken,
	}, true
}

// llmReply takes the conversational path: build context, call the model,
// degrade gracefully when it is unreachable.
func (e *Engine) llmReply(ctx context.Context, userID, sessionID, text string) (*Reply, error) {
	messages, err := e.buildMessages(ctx, userID, sessionID, text)
	if err != nil {
		return nil, err
	}
	e.recordTurn(ctx, userID, sessionID, types.RoleUser, text)

	answer, err := e.chat.Chat(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn().Err(err).Msg("llm unavailable")
		return &Reply{Text: unavailableReply, Source: "llm", Degraded: true}, nil
	}
	return &Reply{Text: answer, Source: "llm"}, nil
}

// buildMessages assembles the prompt: system persona plus rendered
// context, recent turns replayed in order, then the current message.
func (e *Engine) buildMessages(ctx context.Context, userID, sessionID, text string) ([]llm.ChatMessage, error) {
	bundle, err := e.builder.Build(ctx, userID, sessionID, text)
	if err != nil {
		return nil, err
	}

	system := systemPrompt
	if rendered := contextbuilder.Render(bundle); rendered != "" {
		system += "\n\n" + rendered
	}

	messages := []llm.ChatMessage{{Role: "system", Content: system}}
	for _, turn := range bundle.RecentTurns {
		role := "user"
		if turn.Role == types.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: turn.Text})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: text})
	return messages, nil
}

// recordTurn persists one turn, best effort.
func (e *Engine) recordTurn(ctx context.Context, userID, sessionID string, role types.Role, text string) {
	msg := types.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Text:      text,
	}
	if err := e.turns.AppendTurn(ctx, msg); err != nil {
		e.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist turn")
	}
}

// oneChunk returns a closed channel carrying text as a single final chunk.
func oneChunk(text string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Token: text}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch
}
