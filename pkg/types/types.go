// Package types defines the core domain types shared across the Zoe
// assistant: chat messages, memory records, the entity graph, and the
// per-request aggregates produced by retrieval and context assembly.
package types

import "errors"

// Sentinel errors shared across storage and engine layers.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrLLMUnavailable is returned when the LLM backend is down or timed
	// out and no reply could be generated.
	ErrLLMUnavailable = errors.New("llm backend unavailable")

	// ErrNoExpertMatch signals that no expert scored at or above the
	// execution threshold and the caller should fall through to the
	// conversational path. It is a routing signal, not a failure.
	ErrNoExpertMatch = errors.New("no expert match")
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn. Messages are ephemeral from the
// core's point of view; the chat-history collaborator owns persistence.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
}

// ExecutionResult is the outcome of one expert action. Created per
// invocation and relayed directly to the caller.
type ExecutionResult struct {
	// Success reports whether the backing action completed.
	Success bool `json:"success"`

	// Message is the human-readable confirmation or failure text shown
	// to the user verbatim.
	Message string `json:"message"`

	// ActionTaken names the concrete action, e.g. "list_item_added".
	// Empty when no action was performed.
	ActionTaken string `json:"action_taken,omitempty"`

	// Error carries diagnostic detail when Success is false.
	Error string `json:"error,omitempty"`
}
