// Package storage provides composable storage interfaces for the Keeper
// knowledge graph.
//
// The storage layer uses small, focused interfaces that can be implemented
// independently and composed as needed. The core never depends on a query
// language, only on exact-id fetch, predicate scan, and text search.
package storage

import (
	"context"

	"github.com/scrypster/keeper/pkg/types"
)

// EntityStore provides persistence for entities keyed by their
// deterministic IDs.
type EntityStore interface {
	// PutEntity creates or replaces an entity record (upsert semantics).
	PutEntity(ctx context.Context, entity *types.Entity) error

	// GetEntity retrieves an entity by ID.
	// Returns ErrNotFound if no entity with that ID exists.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// ListEntities retrieves entities with pagination and optional type filter.
	ListEntities(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Entity], error)

	// EntitiesByName returns entities whose canonical name or alias set
	// contains the given surface form, compared case-insensitively.
	EntitiesByName(ctx context.Context, name string) ([]types.Entity, error)
}

// RelationshipStore provides persistence for relationships keyed by their
// deterministic (type, source, target) IDs.
type RelationshipStore interface {
	// PutRelationship creates or replaces a relationship record.
	PutRelationship(ctx context.Context, rel *types.Relationship) error

	// GetRelationship retrieves a relationship by ID.
	// Returns ErrNotFound if no relationship with that ID exists.
	GetRelationship(ctx context.Context, id string) (*types.Relationship, error)

	// RelationshipsFor returns all relationships touching the given entity
	// on either end. Returns an empty slice, not an error, for an unknown
	// entity.
	RelationshipsFor(ctx context.Context, entityID string) ([]types.Relationship, error)
}

// DocumentStore provides persistence for ingested documents.
type DocumentStore interface {
	// PutDocument creates or replaces a document record.
	PutDocument(ctx context.Context, doc *types.Document) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if no document with that ID exists.
	GetDocument(ctx context.Context, id string) (*types.Document, error)

	// ListDocuments retrieves documents newest first, up to limit starting
	// at offset.
	ListDocuments(ctx context.Context, limit, offset int) ([]types.Document, error)
}

// SearchProvider provides the raw candidate retrieval primitives the
// retrieval engine scores and merges. Implementations may over-fetch;
// ranking, thresholds, and truncation are the engine's responsibility.
type SearchProvider interface {
	// KeywordSearch returns documents whose title or content match the
	// query terms, up to limit.
	KeywordSearch(ctx context.Context, query string, limit int) ([]types.Document, error)

	// DocumentsByEntity returns documents that reference the given entity
	// name (exact, case-insensitive), up to limit.
	DocumentsByEntity(ctx context.Context, name string, limit int) ([]types.Document, error)

	// DocumentVectorSearch ranks documents by cosine similarity against the
	// query vector, best first, up to limit. Documents without embeddings
	// are skipped.
	DocumentVectorSearch(ctx context.Context, query []float32, limit int) ([]ScoredDocument, error)

	// EntityVectorSearch ranks entities by cosine similarity against the
	// query vector, best first, up to limit. Entities without embeddings
	// are skipped.
	EntityVectorSearch(ctx context.Context, query []float32, limit int) ([]ScoredEntity, error)
}

// GraphStore is the full persistence surface the knowledge graph manager
// operates on. ApplyIngest is the single transactional write path: either
// every record in an ingest batch is committed or none are.
type GraphStore interface {
	EntityStore
	RelationshipStore
	DocumentStore
	SearchProvider

	// ApplyIngest atomically persists the outcome of one ingest operation:
	// the source document plus all resolved entities and relationships.
	// On error nothing is committed.
	ApplyIngest(ctx context.Context, doc *types.Document, entities []*types.Entity, rels []*types.Relationship) error

	// Stats returns knowledge base counters.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases any resources held by the store.
	Close() error
}
