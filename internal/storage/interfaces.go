// Package storage provides composable storage interfaces for the memory
// store the retrieval core reads. The interfaces are small and focused so
// backends can implement them independently: the embedded SQLite store
// implements similarity search as a linear scan, while the PostgreSQL
// store delegates to pgvector when the extension is available.
package storage

import (
	"context"

	"github.com/zoehome/zoe/pkg/types"
)

// MemoryStore provides append-only record storage plus the read paths
// retrieval needs. Records are never mutated after creation except for
// access bookkeeping.
type MemoryStore interface {
	// Append stores a new memory record. IDs are caller-assigned.
	Append(ctx context.Context, record *types.MemoryRecord) error

	// Get retrieves a record by ID. Returns types.ErrNotFound when the
	// record does not exist.
	Get(ctx context.Context, id string) (*types.MemoryRecord, error)

	// ListByUser returns up to limit records for the user, newest first.
	// This is the keyword-fallback candidate source.
	ListByUser(ctx context.Context, userID string, limit int) ([]types.MemoryRecord, error)

	// TouchAccess increments access bookkeeping for a record that was
	// included in a retrieval result.
	TouchAccess(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// SearchProvider provides vector similarity search over a user's records.
type SearchProvider interface {
	// VectorSearch returns up to limit records for the user ranked by
	// cosine similarity to the query vector, most similar first.
	VectorSearch(ctx context.Context, userID string, query []float32, limit int) ([]types.MemoryRecord, error)
}

// GraphProvider provides one-hop expansion over the entity graph.
type GraphProvider interface {
	// Neighbors returns up to limit records for the user that reference
	// the given entities or entities one relationship hop away from
	// them, excluding the listed record IDs.
	Neighbors(ctx context.Context, userID string, entityIDs []string, exclude []string, limit int) ([]types.MemoryRecord, error)
}

// TurnStore persists conversation turns for recency context. Turns are
// owned by the chat-history collaborator in deployment; both backends here
// implement the same table so the core works standalone.
type TurnStore interface {
	// AppendTurn stores one conversation turn.
	AppendTurn(ctx context.Context, msg types.Message) error

	// RecentTurns returns up to limit turns for the session, oldest
	// first, so they can be replayed into the prompt in order.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]types.Message, error)
}
