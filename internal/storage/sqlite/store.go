// Package sqlite provides an embedded SQLite implementation of the
// storage interfaces using the pure-Go modernc driver. Embeddings are
// stored as JSON and similarity search is a linear scan, which is
// adequate at single-household scale (hundreds to low thousands of
// records).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/zoehome/zoe/internal/storage"
	"github.com/zoehome/zoe/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	text             TEXT NOT NULL,
	embedding        TEXT,
	embedding_model  TEXT,
	importance       REAL NOT NULL DEFAULT 0.5,
	entity_refs      TEXT,
	created_at       TIMESTAMP NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS memory_entities (
	memory_id TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	PRIMARY KEY (memory_id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_memory_entities_entity ON memory_entities(entity_id);

CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id);

CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at DESC);
`

// Store implements storage.MemoryStore, SearchProvider, GraphProvider,
// and TurnStore on a single SQLite database file.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database under dataPath and applies the
// schema. All statements are idempotent.
func New(dataPath string) (*Store, error) {
	dsn := filepath.Join(dataPath, "zoe.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewInMemory opens an in-memory database, used by tests.
func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	// A single connection keeps the in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append implements storage.MemoryStore.
func (s *Store) Append(ctx context.Context, record *types.MemoryRecord) error {
	embedding, err := json.Marshal(record.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode embedding: %w", err)
	}
	refs, err := json.Marshal(record.EntityRefs)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode entity refs: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, text, embedding, embedding_model, importance, entity_refs, created_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		record.ID, record.UserID, record.Text, string(embedding), record.EmbeddingModel,
		record.Importance, string(refs), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert memory: %w", err)
	}

	for _, entityID := range record.EntityRefs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_entities (memory_id, entity_id) VALUES (?, ?)`,
			record.ID, entityID); err != nil {
			return fmt.Errorf("sqlite: failed to link entity: %w", err)
		}
	}

	return tx.Commit()
}

// Get implements storage.MemoryStore.
func (s *Store) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, selectMemory+` WHERE id = ?`, id)
	record, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}
	return record, nil
}

// ListByUser implements storage.MemoryStore.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		selectMemory+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// TouchAccess implements storage.MemoryStore.
func (s *Store) TouchAccess(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch access: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// VectorSearch implements storage.SearchProvider with an in-process
// linear scan: load the user's embedded records and rank by cosine
// similarity. Records without embeddings are skipped.
func (s *Store) VectorSearch(ctx context.Context, userID string, query []float32, limit int) ([]types.MemoryRecord, error) {
	records, err := s.ListByUser(ctx, userID, 10000)
	if err != nil {
		return nil, err
	}

	type scored struct {
		record types.MemoryRecord
		sim    float64
	}
	var candidates []scored
	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{record: r, sim: cosineSimilarity(query, r.Embedding)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].record.ID < candidates[j].record.ID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]types.MemoryRecord, len(candidates))
	for i, c := range candidates {
		out[i] = c.record
	}
	return out, nil
}

// Neighbors implements storage.GraphProvider: one relationship hop from
// the seed entities, then every record referencing the widened entity set.
func (s *Store) Neighbors(ctx context.Context, userID string, entityIDs []string, exclude []string, limit int) ([]types.MemoryRecord, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	// Widen the entity set by one hop in either direction.
	widened := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		widened[id] = true
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id FROM relationships
		WHERE from_id IN (`+placeholders(len(entityIDs))+`)
		   OR to_id IN (`+placeholders(len(entityIDs))+`)`,
		append(toArgs(entityIDs), toArgs(entityIDs)...)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query relationships: %w", err)
	}
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: failed to scan relationship: %w", err)
		}
		widened[from] = true
		widened[to] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: relationship iteration: %w", err)
	}

	entityList := make([]string, 0, len(widened))
	for id := range widened {
		entityList = append(entityList, id)
	}
	sort.Strings(entityList) // deterministic query shape

	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	memRows, err := s.db.QueryContext(ctx, selectMemory+`
		WHERE user_id = ? AND id IN (
			SELECT DISTINCT memory_id FROM memory_entities
			WHERE entity_id IN (`+placeholders(len(entityList))+`)
		)
		ORDER BY created_at DESC`,
		append([]any{userID}, toArgs(entityList)...)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query neighbors: %w", err)
	}
	defer memRows.Close()

	all, err := scanMemories(memRows)
	if err != nil {
		return nil, err
	}
	var out []types.MemoryRecord
	for _, r := range all {
		if excluded[r.ID] {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AppendTurn implements storage.TurnStore.
func (s *Store) AppendTurn(ctx context.Context, msg types.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, user_id, role, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.UserID, string(msg.Role), msg.Text, time.Now())
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert turn: %w", err)
	}
	return nil
}

// RecentTurns implements storage.TurnStore.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, role, text FROM turns
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list turns: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var m types.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &role, &m.Text); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan turn: %w", err)
		}
		m.Role = types.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: turn iteration: %w", err)
	}

	// Reverse: the query returns newest first, callers want oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AddEntity inserts an entity node; used by tests and standalone setups.
func (s *Store) AddEntity(ctx context.Context, e types.Entity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entities (id, name, type, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Name, e.Type, time.Now())
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert entity: %w", err)
	}
	return nil
}

// AddRelationship inserts a relationship edge.
func (s *Store) AddRelationship(ctx context.Context, r types.Relationship) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO relationships (id, from_id, to_id, type, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.FromID, r.ToID, r.Type, time.Now())
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert relationship: %w", err)
	}
	return nil
}

// Close implements storage.MemoryStore.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectMemory = `
	SELECT id, user_id, text, embedding, embedding_model, importance, entity_refs,
	       created_at, access_count, last_accessed_at
	FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.MemoryRecord, error) {
	var r types.MemoryRecord
	var embedding, refs sql.NullString
	var model sql.NullString
	var lastAccessed sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.Text, &embedding, &model, &r.Importance, &refs,
		&r.CreatedAt, &r.AccessCount, &lastAccessed)
	if err != nil {
		return nil, err
	}
	if embedding.Valid && embedding.String != "" && embedding.String != "null" {
		if err := json.Unmarshal([]byte(embedding.String), &r.Embedding); err != nil {
			return nil, fmt.Errorf("sqlite: failed to decode embedding: %w", err)
		}
	}
	if refs.Valid && refs.String != "" && refs.String != "null" {
		if err := json.Unmarshal([]byte(refs.String), &r.EntityRefs); err != nil {
			return nil, fmt.Errorf("sqlite: failed to decode entity refs: %w", err)
		}
	}
	r.EmbeddingModel = model.String
	if lastAccessed.Valid {
		t := lastAccessed.Time
		r.LastAccessedAt = &t
	}
	return &r, nil
}

func scanMemories(rows *sql.Rows) ([]types.MemoryRecord, error) {
	var out []types.MemoryRecord
	for rows.Next() {
		r, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: memory iteration: %w", err)
	}
	return out, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when dimensions mismatch or either vector is zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func toArgs(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

var _ storage.MemoryStore = (*Store)(nil)
var _ storage.SearchProvider = (*Store)(nil)
var _ storage.GraphProvider = (*Store)(nil)
var _ storage.TurnStore = (*Store)(nil)
