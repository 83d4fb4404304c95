// Package sqlite implements the storage interfaces on SQLite using
// modernc.org/sqlite. It is the default backend: a single file, WAL mode,
// FTS5 keyword search, and in-process vector scoring over BLOB embeddings.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/keeper/internal/storage"
	"github.com/scrypster/keeper/pkg/types"
)

// Ensure *Store satisfies the full graph surface at compile time.
var _ storage.GraphStore = (*Store)(nil)

// Store implements storage.GraphStore using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite graph store, configures WAL mode, and creates the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying database handle. Used by tests and maintenance
// tooling, not by the graph core.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutEntity creates or replaces an entity record.
func (s *Store) PutEntity(ctx context.Context, entity *types.Entity) error {
	return s.putEntity(ctx, s.db, entity)
}

// execer abstracts *sql.DB and *sql.Tx so single writes and transactional
// ingest batches share the same statements.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) putEntity(ctx context.Context, ex execer, entity *types.Entity) error {
	if entity == nil {
		return storage.ErrInvalidInput
	}
	if entity.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	aliasesJSON, err := marshalJSON(entity.Aliases)
	if err != nil {
		return fmt.Errorf("sqlite: marshal aliases: %w", err)
	}
	attrsJSON, err := marshalJSON(entity.Attributes)
	if err != nil {
		return fmt.Errorf("sqlite: marshal attributes: %w", err)
	}
	sourcesJSON, err := marshalJSON(entity.Sources)
	if err != nil {
		return fmt.Errorf("sqlite: marshal sources: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO entities (
			id, type, name, aliases, attributes, embedding, dimension,
			confidence, sources, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			aliases = excluded.aliases,
			attributes = excluded.attributes,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			confidence = excluded.confidence,
			sources = excluded.sources,
			updated_at = excluded.updated_at`,
		entity.ID, string(entity.Type), entity.Name, aliasesJSON, attrsJSON,
		serializeVector(entity.Embedding), len(entity.Embedding),
		string(entity.Confidence), sourcesJSON, entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put entity %s: %w", entity.ID, err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, name, aliases, attributes, embedding, dimension,
		       confidence, sources, created_at, updated_at
		FROM entities WHERE id = ?`, id)

	entity, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get entity %s: %w", id, err)
	}
	return entity, nil
}

// ListEntities retrieves entities with pagination and optional type filter.
func (s *Store) ListEntities(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Entity], error) {
	opts.Normalize()

	where := ""
	args := []any{}
	if opts.EntityType != "" {
		where = " WHERE type = ?"
		args = append(args, string(opts.EntityType))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: count entities: %w", err)
	}

	query := `
		SELECT id, type, name, aliases, attributes, embedding, dimension,
		       confidence, sources, created_at, updated_at
		FROM entities` + where + ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan entity: %w", err)
		}
		items = append(items, *entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list entities rows: %w", err)
	}

	return &storage.PaginatedResult[types.Entity]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// EntitiesByName returns entities matching the surface form by canonical
// name or alias, case-insensitively. Alias matching filters candidates in
// Go because aliases live in a JSON column.
func (s *Store) EntitiesByName(ctx context.Context, name string) ([]types.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	// Candidate fetch: exact name match, or the alias JSON mentions the
	// surface form anywhere. False positives are filtered below.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, aliases, attributes, embedding, dimension,
		       confidence, sources, created_at, updated_at
		FROM entities
		WHERE name = ? COLLATE NOCASE OR lower(COALESCE(aliases, '')) LIKE ?`,
		name, "%"+strings.ToLower(name)+"%")
	if err != nil {
		return nil, fmt.Errorf("sqlite: entities by name %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var matches []types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan entity: %w", err)
		}
		if entity.Matches(name) {
			matches = append(matches, *entity)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: entities by name rows: %w", err)
	}
	return matches, nil
}

// PutRelationship creates or replaces a relationship record.
func (s *Store) PutRelationship(ctx context.Context, rel *types.Relationship) error {
	return s.putRelationship(ctx, s.db, rel)
}

func (s *Store) putRelationship(ctx context.Context, ex execer, rel *types.Relationship) error {
	if rel == nil {
		return storage.ErrInvalidInput
	}
	if rel.ID == "" {
		return fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO relationships (
			id, type, source_id, target_id, confidence, temporal_context,
			source, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			confidence = excluded.confidence,
			temporal_context = excluded.temporal_context,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		rel.ID, string(rel.Type), rel.SourceID, rel.TargetID,
		string(rel.Confidence), rel.TemporalContext, rel.Source,
		rel.CreatedAt, rel.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put relationship %s: %w", rel.ID, err)
	}
	return nil
}

// GetRelationship retrieves a relationship by ID.
func (s *Store) GetRelationship(ctx context.Context, id string) (*types.Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, source_id, target_id, confidence, temporal_context,
		       source, created_at, updated_at
		FROM relationships WHERE id = ?`, id)

	rel, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get relationship %s: %w", id, err)
	}
	return rel, nil
}

// RelationshipsFor returns all relationships touching the given entity.
func (s *Store) RelationshipsFor(ctx context.Context, entityID string) ([]types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, source_id, target_id, confidence, temporal_context,
		       source, created_at, updated_at
		FROM relationships
		WHERE source_id = ? OR target_id = ?
		ORDER BY updated_at DESC`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: relationships for %s: %w", entityID, err)
	}
	defer func() { _ = rows.Close() }()

	var rels []types.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan relationship: %w", err)
		}
		rels = append(rels, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: relationships rows: %w", err)
	}
	return rels, nil
}

// PutDocument creates or replaces a document record.
func (s *Store) PutDocument(ctx context.Context, doc *types.Document) error {
	return s.putDocument(ctx, s.db, doc)
}

func (s *Store) putDocument(ctx context.Context, ex execer, doc *types.Document) error {
	if doc == nil {
		return storage.ErrInvalidInput
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}

	entitiesJSON, err := marshalJSON(doc.Entities)
	if err != nil {
		return fmt.Errorf("sqlite: marshal document entities: %w", err)
	}
	metadataJSON, err := marshalJSON(doc.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: marshal document metadata: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO documents (
			id, title, content, entities, embedding, dimension, metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			entities = excluded.entities,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Title, doc.Content, entitiesJSON,
		serializeVector(doc.Embedding), len(doc.Embedding), metadataJSON,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, entities, embedding, dimension, metadata,
		       created_at, updated_at
		FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments retrieves documents newest first.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]types.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, entities, embedding, dimension, metadata,
		       created_at, updated_at
		FROM documents ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list documents rows: %w", err)
	}
	return docs, nil
}

// ApplyIngest atomically persists one ingest batch. BEGIN IMMEDIATE takes
// the write lock up front so the batch cannot deadlock against another
// writer midway through.
func (s *Store) ApplyIngest(ctx context.Context, doc *types.Document, entities []*types.Entity, rels []*types.Relationship) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin ingest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, entity := range entities {
		if err := s.putEntity(ctx, tx, entity); err != nil {
			return err
		}
	}
	for _, rel := range rels {
		if err := s.putRelationship(ctx, tx, rel); err != nil {
			return err
		}
	}
	if doc != nil {
		if err := s.putDocument(ctx, tx, doc); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit ingest transaction: %w", err)
	}
	return nil
}

// Stats returns knowledge base counters.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{EntitiesByType: make(map[types.EntityType]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&stats.Entities); err != nil {
		return nil, fmt.Errorf("sqlite: count entities: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relationships").Scan(&stats.Relationships); err != nil {
		return nil, fmt.Errorf("sqlite: count relationships: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return nil, fmt.Errorf("sqlite: count documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM entities GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("sqlite: entities by type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scan type count: %w", err)
		}
		stats.EntitiesByType[types.EntityType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: type count rows: %w", err)
	}

	// Attribute versions are counted by walking the JSON histories. The
	// entity table is small relative to documents, so a full scan is fine.
	attrRows, err := s.db.QueryContext(ctx, "SELECT attributes FROM entities WHERE attributes IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: attribute histories: %w", err)
	}
	defer func() { _ = attrRows.Close() }()
	for attrRows.Next() {
		var raw sql.NullString
		if err := attrRows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan attributes: %w", err)
		}
		if !raw.Valid || raw.String == "" {
			continue
		}
		var attrs map[string][]types.Attribute
		if err := json.Unmarshal([]byte(raw.String), &attrs); err != nil {
			continue
		}
		for _, history := range attrs {
			stats.AttributeVersions += len(history)
		}
	}
	if err := attrRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: attribute rows: %w", err)
	}

	return stats, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var entity types.Entity
	var typ, confidence string
	var aliasesJSON, attrsJSON, sourcesJSON sql.NullString
	var embedding []byte
	var dimension int

	err := row.Scan(
		&entity.ID, &typ, &entity.Name, &aliasesJSON, &attrsJSON,
		&embedding, &dimension, &confidence, &sourcesJSON,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entity.Type = types.EntityType(typ)
	entity.Confidence = types.ConfidenceLevel(confidence)

	if err := unmarshalJSON(aliasesJSON, &entity.Aliases); err != nil {
		return nil, fmt.Errorf("unmarshal aliases: %w", err)
	}
	if err := unmarshalJSON(attrsJSON, &entity.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	if err := unmarshalJSON(sourcesJSON, &entity.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	if entity.Attributes == nil {
		entity.Attributes = make(map[string][]types.Attribute)
	}

	vec, err := deserializeVector(embedding, dimension)
	if err != nil {
		return nil, fmt.Errorf("deserialize embedding: %w", err)
	}
	entity.Embedding = vec

	return &entity, nil
}

func scanRelationship(row rowScanner) (*types.Relationship, error) {
	var rel types.Relationship
	var typ, confidence string
	var temporalContext, source sql.NullString

	err := row.Scan(
		&rel.ID, &typ, &rel.SourceID, &rel.TargetID, &confidence,
		&temporalContext, &source, &rel.CreatedAt, &rel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rel.Type = types.RelationType(typ)
	rel.Confidence = types.ConfidenceLevel(confidence)
	if temporalContext.Valid {
		rel.TemporalContext = temporalContext.String
	}
	if source.Valid {
		rel.Source = source.String
	}
	return &rel, nil
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var doc types.Document
	var entitiesJSON, metadataJSON sql.NullString
	var embedding []byte
	var dimension int

	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Content, &entitiesJSON,
		&embedding, &dimension, &metadataJSON,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(entitiesJSON, &doc.Entities); err != nil {
		return nil, fmt.Errorf("unmarshal document entities: %w", err)
	}
	if err := unmarshalJSON(metadataJSON, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal document metadata: %w", err)
	}

	vec, err := deserializeVector(embedding, dimension)
	if err != nil {
		return nil, fmt.Errorf("deserialize embedding: %w", err)
	}
	doc.Embedding = vec

	return &doc, nil
}

// marshalJSON serializes v, returning NULL for empty values so the column
// stays cleanly nullable.
func marshalJSON(v any) (any, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string][]types.Attribute:
		if len(val) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalJSON(ns sql.NullString, dest any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dest)
}

// serializeVector encodes a float32 vector as little-endian bytes.
// Returns nil for empty vectors so the column stays NULL.
func serializeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector decodes a little-endian float32 vector. dimension
// validates the buffer length; zero dimension means no vector stored.
func deserializeVector(buf []byte, dimension int) ([]float32, error) {
	if dimension == 0 || len(buf) == 0 {
		return nil, nil
	}
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("vector buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}
	vec := make([]float32, dimension)
	for i := 0; i < dimension; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
