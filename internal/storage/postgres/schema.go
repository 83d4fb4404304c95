// Package postgres provides a PostgreSQL implementation of the storage
// interfaces, with tsvector keyword search and pgvector similarity search.
package postgres

// Schema contains the SQL statements to create the knowledge graph schema.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    aliases JSONB,
    attributes JSONB,
    confidence TEXT NOT NULL DEFAULT 'high',
    sources JSONB,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name_lower ON entities(lower(name));

CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    confidence TEXT NOT NULL DEFAULT 'high',
    temporal_context TEXT,
    source TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    entities JSONB,
    metadata JSONB,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_entities ON documents USING GIN(entities);
`

// MigrationFTS adds a tsvector column covering title and content, a GIN
// index, and a trigger that keeps the column current. A regular tsvector
// column (not GENERATED ALWAYS AS) is used for maximum compatibility across
// PostgreSQL versions.
const MigrationFTS = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'documents' AND column_name = 'search_tsv'
    ) THEN
        ALTER TABLE documents ADD COLUMN search_tsv tsvector;
    END IF;
END
$$;

UPDATE documents
SET search_tsv = to_tsvector('english', coalesce(title, '') || ' ' || coalesce(content, ''))
WHERE search_tsv IS NULL;

CREATE INDEX IF NOT EXISTS idx_documents_search_tsv ON documents USING GIN(search_tsv);

CREATE OR REPLACE FUNCTION documents_tsv_update()
RETURNS TRIGGER AS $$
BEGIN
    NEW.search_tsv := to_tsvector('english', coalesce(NEW.title, '') || ' ' || coalesce(NEW.content, ''));
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_tsv_trigger ON documents;
CREATE TRIGGER documents_tsv_trigger
    BEFORE INSERT OR UPDATE OF title, content
    ON documents
    FOR EACH ROW
    EXECUTE FUNCTION documents_tsv_update();
`

// MigrationPgvector adds embedding columns to entities and documents.
// Only applied when the vector extension is available. The ivfflat indexes
// require at least one row to exist, so creation is guarded.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'entities' AND column_name = 'embedding'
    ) THEN
        ALTER TABLE entities ADD COLUMN embedding vector;
    END IF;
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'documents' AND column_name = 'embedding'
    ) THEN
        ALTER TABLE documents ADD COLUMN embedding vector;
    END IF;
END
$$;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_entities_embedding_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM entities WHERE embedding IS NOT NULL LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_entities_embedding_cosine ON entities USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_documents_embedding_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM documents WHERE embedding IS NOT NULL LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_documents_embedding_cosine ON documents USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
