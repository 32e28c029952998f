package types

import "time"

// Entity is a node in the relationship graph: a person, project, place,
// or topic. The graph is populated by external collaborators; the core
// only reads it during retrieval expansion.
type Entity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // person, project, place, topic
	CreatedAt time.Time `json:"created_at"`
}

// Relationship is a typed directed edge between two entities.
type Relationship struct {
	ID        string    `json:"id"`
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Type      string    `json:"type"` // knows, works_on, located_in, ...
	CreatedAt time.Time `json:"created_at"`
}
