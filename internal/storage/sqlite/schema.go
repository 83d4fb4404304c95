package sqlite

// Schema defines the SQLite schema for the knowledge graph store.
//
// Entity attribute histories and alias sets are stored as JSON columns:
// attribute versions are append-only and always read and written as a
// whole, so there is no benefit to normalizing them into rows.
//
// The documents_fts virtual table is kept in sync with documents via
// triggers so keyword search never sees stale rows.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	aliases     TEXT,
	attributes  TEXT,
	embedding   BLOB,
	dimension   INTEGER NOT NULL DEFAULT 0,
	confidence  TEXT NOT NULL DEFAULT 'high',
	sources     TEXT,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS relationships (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	source_id        TEXT NOT NULL,
	target_id        TEXT NOT NULL,
	confidence       TEXT NOT NULL DEFAULT 'high',
	temporal_context TEXT,
	source           TEXT,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	content     TEXT NOT NULL,
	entities    TEXT,
	embedding   BLOB,
	dimension   INTEGER NOT NULL DEFAULT 0,
	metadata    TEXT,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_title ON documents(title COLLATE NOCASE);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	title,
	content,
	content=documents,
	content_rowid=rowid
);

CREATE TRIGGER IF NOT EXISTS documents_fts_insert AFTER INSERT ON documents BEGIN
	INSERT INTO documents_fts(rowid, title, content)
	VALUES (new.rowid, new.title, new.content);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_delete AFTER DELETE ON documents BEGIN
	INSERT INTO documents_fts(documents_fts, rowid, title, content)
	VALUES ('delete', old.rowid, old.title, old.content);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_update AFTER UPDATE ON documents BEGIN
	INSERT INTO documents_fts(documents_fts, rowid, title, content)
	VALUES ('delete', old.rowid, old.title, old.content);
	INSERT INTO documents_fts(rowid, title, content)
	VALUES (new.rowid, new.title, new.content);
END;
`
