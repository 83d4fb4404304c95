package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/keeper/internal/storage"
	"github.com/scrypster/keeper/pkg/types"
)

// KeywordSearch performs tsvector full-text search across document titles
// and content. plainto_tsquery handles operator characters in free-form
// input, so no sanitisation pass is needed.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int) ([]types.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, entities, metadata, created_at, updated_at
		FROM documents
		WHERE search_tsv @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(search_tsv, plainto_tsquery('english', $1)) DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: keyword search %q: %w", query, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: keyword search scan: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: keyword search rows: %w", err)
	}
	return docs, nil
}

// DocumentsByEntity returns documents whose entity list contains the given
// name. The JSONB containment probe is case-sensitive, so candidates are
// fetched with a lowercased text filter and verified in Go.
func (s *Store) DocumentsByEntity(ctx context.Context, name string, limit int) ([]types.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, entities, metadata, created_at, updated_at
		FROM documents
		WHERE lower(coalesce(entities::text, '')) LIKE '%' || lower($1) || '%'
		ORDER BY updated_at DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("postgres: documents by entity %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		if doc.ReferencesEntity(name) == 0 {
			continue
		}
		docs = append(docs, *doc)
		if len(docs) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: documents by entity rows: %w", err)
	}
	return docs, nil
}

// DocumentVectorSearch ranks documents by pgvector cosine distance. The
// score reported is cosine similarity (1 - distance). Returns no results
// when the vector extension is unavailable.
func (s *Store) DocumentVectorSearch(ctx context.Context, query []float32, limit int) ([]storage.ScoredDocument, error) {
	if len(query) == 0 || limit <= 0 || !s.pgvectorAvailable {
		return nil, nil
	}

	vec := pgvector.NewVector(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, entities, metadata, created_at, updated_at,
		       1 - (embedding <=> $1::vector) AS score
		FROM documents
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: document vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scored []storage.ScoredDocument
	for rows.Next() {
		var doc types.Document
		var entitiesJSON, metadataJSON sql.NullString
		var score float64
		err := rows.Scan(
			&doc.ID, &doc.Title, &doc.Content, &entitiesJSON, &metadataJSON,
			&doc.CreatedAt, &doc.UpdatedAt, &score,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: vector search scan: %w", err)
		}
		if err := unmarshalJSONB(entitiesJSON, &doc.Entities); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal document entities: %w", err)
		}
		if err := unmarshalJSONB(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal document metadata: %w", err)
		}
		scored = append(scored, storage.ScoredDocument{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector search rows: %w", err)
	}
	return scored, nil
}

// EntityVectorSearch ranks entities by pgvector cosine distance. Returns no
// results when the vector extension is unavailable.
func (s *Store) EntityVectorSearch(ctx context.Context, query []float32, limit int) ([]storage.ScoredEntity, error) {
	if len(query) == 0 || limit <= 0 || !s.pgvectorAvailable {
		return nil, nil
	}

	vec := pgvector.NewVector(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, aliases, attributes, confidence, sources,
		       created_at, updated_at,
		       1 - (embedding <=> $1::vector) AS score
		FROM entities
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: entity vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scored []storage.ScoredEntity
	for rows.Next() {
		var entity types.Entity
		var typ, confidence string
		var aliasesJSON, attrsJSON, sourcesJSON sql.NullString
		var score float64
		err := rows.Scan(
			&entity.ID, &typ, &entity.Name, &aliasesJSON, &attrsJSON,
			&confidence, &sourcesJSON, &entity.CreatedAt, &entity.UpdatedAt, &score,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: entity vector scan: %w", err)
		}
		entity.Type = types.EntityType(typ)
		entity.Confidence = types.ConfidenceLevel(confidence)
		if err := unmarshalJSONB(aliasesJSON, &entity.Aliases); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal aliases: %w", err)
		}
		if err := unmarshalJSONB(attrsJSON, &entity.Attributes); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal attributes: %w", err)
		}
		if err := unmarshalJSONB(sourcesJSON, &entity.Sources); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal sources: %w", err)
		}
		if entity.Attributes == nil {
			entity.Attributes = make(map[string][]types.Attribute)
		}
		scored = append(scored, storage.ScoredEntity{Entity: entity, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: entity vector rows: %w", err)
	}
	return scored, nil
}
