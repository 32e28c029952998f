// Package postgres provides a PostgreSQL implementation of the storage
// interfaces. Vector similarity search uses the pgvector extension when
// it is installed; without it the store still works, with VectorSearch
// degrading to a recency-ordered scan ranked in process.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/storage"
	"github.com/zoehome/zoe/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	text             TEXT NOT NULL,
	embedding_json   TEXT,
	embedding_model  TEXT,
	importance       DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	entity_refs      TEXT,
	created_at       TIMESTAMPTZ NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMPTZ
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
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id);

CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at DESC);
`

// embeddingDim is the column width of the pgvector embedding column.
// nomic-embed-text and text-embedding-3-small both emit this many
// dimensions at default settings.
const embeddingDim = 768

// Store implements storage.MemoryStore, SearchProvider, GraphProvider,
// and TurnStore on PostgreSQL.
type Store struct {
	db        *sql.DB
	hasVector bool
	log       zerolog.Logger
}

// New connects to PostgreSQL, applies the schema, and probes for the
// pgvector extension. Missing pgvector is logged, not fatal.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:  db,
		log: log.With().Str("component", "postgres").Logger(),
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	s.hasVector = s.probeVector()
	if !s.hasVector {
		s.log.Warn().Msg("pgvector extension unavailable, similarity search will rank in process")
	}
	return s, nil
}

// probeVector tries to enable pgvector and add the embedding column. Both
// statements are idempotent, and either failing means the fallback path.
func (s *Store) probeVector() bool {
	if _, err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return false
	}
	stmt := fmt.Sprintf(`ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding vector(%d)`, embeddingDim)
	if _, err := s.db.Exec(stmt); err != nil {
		return false
	}
	return true
}

// Append implements storage.MemoryStore.
func (s *Store) Append(ctx context.Context, record *types.MemoryRecord) error {
	embJSON, err := json.Marshal(record.Embedding)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode embedding: %w", err)
	}
	refs, err := json.Marshal(record.EntityRefs)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode entity refs: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if s.hasVector && len(record.Embedding) == embeddingDim {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (id, user_id, text, embedding_json, embedding, embedding_model, importance, entity_refs, created_at, access_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)`,
			record.ID, record.UserID, record.Text, string(embJSON),
			pgvector.NewVector(record.Embedding), record.EmbeddingModel,
			record.Importance, string(refs), record.CreatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (id, user_id, text, embedding_json, embedding_model, importance, entity_refs, created_at, access_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)`,
			record.ID, record.UserID, record.Text, string(embJSON),
			record.EmbeddingModel, record.Importance, string(refs), record.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to insert memory: %w", err)
	}

	for _, entityID := range record.EntityRefs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_entities (memory_id, entity_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, record.ID, entityID); err != nil {
			return fmt.Errorf("postgres: failed to link entity: %w", err)
		}
	}

	return tx.Commit()
}

// Get implements storage.MemoryStore.
func (s *Store) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, selectMemory+` WHERE id = $1`, id)
	record, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get memory: %w", err)
	}
	return record, nil
}

// ListByUser implements storage.MemoryStore.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		selectMemory+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// TouchAccess implements storage.MemoryStore.
func (s *Store) TouchAccess(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to touch access: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// VectorSearch implements storage.SearchProvider. With pgvector, ranking
// happens in the database via the cosine distance operator; otherwise the
// user's records are ranked in process, same as the SQLite store.
func (s *Store) VectorSearch(ctx context.Context, userID string, query []float32, limit int) ([]types.MemoryRecord, error) {
	if s.hasVector && len(query) == embeddingDim {
		rows, err := s.db.QueryContext(ctx, selectMemory+`
			WHERE user_id = $1 AND embedding IS NOT NULL
			ORDER BY embedding <=> $2, id
			LIMIT $3`, userID, pgvector.NewVector(query), limit)
		if err != nil {
			return nil, fmt.Errorf("postgres: vector search failed: %w", err)
		}
		defer rows.Close()
		return scanMemories(rows)
	}
	return s.scanSearch(ctx, userID, query, limit)
}

// scanSearch is the in-process fallback ranking path.
func (s *Store) scanSearch(ctx context.Context, userID string, query []float32, limit int) ([]types.MemoryRecord, error) {
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

// Neighbors implements storage.GraphProvider with a single recursive-free
// query: seed entities plus everything one relationship hop away, joined
// back to the memories that reference them.
func (s *Store) Neighbors(ctx context.Context, userID string, entityIDs []string, exclude []string, limit int) ([]types.MemoryRecord, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, selectMemory+`
		WHERE user_id = $1
		  AND id IN (
			SELECT DISTINCT me.memory_id FROM memory_entities me
			WHERE me.entity_id = ANY($2)
			   OR me.entity_id IN (
				SELECT r.to_id FROM relationships r WHERE r.from_id = ANY($2)
				UNION
				SELECT r.from_id FROM relationships r WHERE r.to_id = ANY($2)
			   )
		  )
		  AND NOT (id = ANY($3))
		ORDER BY created_at DESC
		LIMIT $4`,
		userID, pq.Array(entityIDs), pq.Array(exclude), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: neighbor query failed: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// AppendTurn implements storage.TurnStore.
func (s *Store) AppendTurn(ctx context.Context, msg types.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, user_id, role, text, created_at)
		VALUES ($1, $2, $3, $4, $5, clock_timestamp())`,
		msg.ID, msg.SessionID, msg.UserID, string(msg.Role), msg.Text)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert turn: %w", err)
	}
	return nil
}

// RecentTurns implements storage.TurnStore.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, role, text FROM turns
		WHERE session_id = $1
		ORDER BY created_at DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list turns: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var m types.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &role, &m.Text); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan turn: %w", err)
		}
		m.Role = types.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: turn iteration: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AddEntity inserts or replaces an entity node.
func (s *Store) AddEntity(ctx context.Context, e types.Entity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, type, created_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type`,
		e.ID, e.Name, e.Type)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert entity: %w", err)
	}
	return nil
}

// AddRelationship inserts or replaces a relationship edge.
func (s *Store) AddRelationship(ctx context.Context, r types.Relationship) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, from_id, to_id, type, created_at) VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET from_id = EXCLUDED.from_id, to_id = EXCLUDED.to_id, type = EXCLUDED.type`,
		r.ID, r.FromID, r.ToID, r.Type)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert relationship: %w", err)
	}
	return nil
}

// Close implements storage.MemoryStore.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectMemory = `
	SELECT id, user_id, text, embedding_json, embedding_model, importance, entity_refs,
	       created_at, access_count, last_accessed_at
	FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.MemoryRecord, error) {
	var r types.MemoryRecord
	var embedding, refs, model sql.NullString
	var lastAccessed sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.Text, &embedding, &model, &r.Importance, &refs,
		&r.CreatedAt, &r.AccessCount, &lastAccessed)
	if err != nil {
		return nil, err
	}
	if embedding.Valid && embedding.String != "" && embedding.String != "null" {
		if err := json.Unmarshal([]byte(embedding.String), &r.Embedding); err != nil {
			return nil, fmt.Errorf("postgres: failed to decode embedding: %w", err)
		}
	}
	if refs.Valid && refs.String != "" && refs.String != "null" {
		if err := json.Unmarshal([]byte(refs.String), &r.EntityRefs); err != nil {
			return nil, fmt.Errorf("postgres: failed to decode entity refs: %w", err)
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
			return nil, fmt.Errorf("postgres: failed to scan memory: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: memory iteration: %w", err)
	}
	return out, nil
}

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

var _ storage.MemoryStore = (*Store)(nil)
var _ storage.SearchProvider = (*Store)(nil)
var _ storage.GraphProvider = (*Store)(nil)
var _ storage.TurnStore = (*Store)(nil)
