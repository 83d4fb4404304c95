package types

import (
	"strings"
	"time"
)

// Document is a unit of ingested text retained for retrieval. Every ingest
// produces one document; the entities extracted from it are recorded by
// name so the entity search strategy can match documents without loading
// the full graph.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`

	// Entities lists the canonical names of entities referenced by this
	// document, in extraction order.
	Entities []string `json:"entities,omitempty"`

	// Embedding is the document-level vector supplied by the embedding
	// collaborator, or nil when embeddings are unavailable.
	Embedding []float32 `json:"embedding,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReferencesEntity reports whether the document records a reference to the
// given entity name (exact, case-insensitive).
func (d *Document) ReferencesEntity(name string) int {
	count := 0
	for _, e := range d.Entities {
		if strings.EqualFold(e, name) {
			count++
		}
	}
	return count
}
