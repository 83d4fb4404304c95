package sqlite

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scrypster/keeper/internal/storage"
	"github.com/scrypster/keeper/pkg/types"
)

// vectorSearchMaxCandidates caps the number of embeddings loaded into memory
// during a vector search. Candidates are selected in recency order (newest
// first) so recently ingested records are always considered. For typical
// personal knowledge bases (< 10k documents) this limit is never hit; for
// larger datasets use the PostgreSQL backend with pgvector's indexed search.
const vectorSearchMaxCandidates = 10_000

// KeywordSearch returns documents whose title or content match the query
// terms. It queries FTS5 first and falls back to a LIKE scan if the query
// still trips FTS5 syntax after sanitisation.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int) ([]types.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	// Sanitise the raw query string so it is safe to pass to FTS5's MATCH
	// operator. FTS5 syntax is fragile: an unbalanced quote or stray
	// operator keyword makes SQLite return "fts5: syntax error". Free-form
	// input becomes individual prefix terms with OR semantics.
	ftsQuery := sanitiseFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.content, d.entities, d.embedding, d.dimension,
		       d.metadata, d.created_at, d.updated_at
		FROM documents_fts fts
		JOIN documents d ON d.rowid = fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		// Malformed input can still slip past sanitisation.
		return s.keywordSearchLike(ctx, query, limit)
	}
	defer func() { _ = rows.Close() }()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keyword search scan: %w", err)
	}
	return docs, nil
}

// keywordSearchLike is the degraded keyword path used when FTS5 rejects the
// query. Each term matches title or content via LIKE.
func (s *Store) keywordSearchLike(ctx context.Context, query string, limit int) ([]types.Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var conds []string
	var args []any
	for _, term := range terms {
		conds = append(conds, "(lower(title) LIKE ? OR lower(content) LIKE ?)")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, entities, embedding, dimension,
		       metadata, created_at, updated_at
		FROM documents
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY updated_at DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keyword LIKE search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keyword LIKE scan: %w", err)
	}
	return docs, nil
}

// DocumentsByEntity returns documents that reference the given entity name.
// The entities column is JSON, so the SQL match is a coarse substring filter
// and exact case-insensitive membership is verified in Go.
func (s *Store) DocumentsByEntity(ctx context.Context, name string, limit int) ([]types.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, entities, embedding, dimension,
		       metadata, created_at, updated_at
		FROM documents
		WHERE lower(COALESCE(entities, '')) LIKE ?
		ORDER BY updated_at DESC`, "%"+strings.ToLower(name)+"%")
	if err != nil {
		return nil, fmt.Errorf("sqlite: documents by entity %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan document: %w", err)
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
		return nil, fmt.Errorf("sqlite: documents by entity rows: %w", err)
	}
	return docs, nil
}

// DocumentVectorSearch ranks documents by cosine similarity against the
// query vector. Embeddings are loaded into Go memory and scored in-process.
func (s *Store) DocumentVectorSearch(ctx context.Context, query []float32, limit int) ([]storage.ScoredDocument, error) {
	if len(query) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, entities, embedding, dimension,
		       metadata, created_at, updated_at
		FROM documents
		WHERE embedding IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT ?`, vectorSearchMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load document embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scored []storage.ScoredDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			continue
		}
		if len(doc.Embedding) == 0 {
			continue
		}
		scored = append(scored, storage.ScoredDocument{
			Document: *doc,
			Score:    cosineSimilarity(query, doc.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: document embedding rows: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// EntityVectorSearch ranks entities by cosine similarity against the query
// vector.
func (s *Store) EntityVectorSearch(ctx context.Context, query []float32, limit int) ([]storage.ScoredEntity, error) {
	if len(query) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, aliases, attributes, embedding, dimension,
		       confidence, sources, created_at, updated_at
		FROM entities
		WHERE embedding IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT ?`, vectorSearchMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load entity embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scored []storage.ScoredEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			continue
		}
		if len(entity.Embedding) == 0 {
			continue
		}
		scored = append(scored, storage.ScoredEntity{
			Entity: *entity,
			Score:  cosineSimilarity(query, entity.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: entity embedding rows: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func scanDocuments(rows interface {
	Next() bool
	Err() error
	Scan(dest ...any) error
}) ([]types.Document, error) {
	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 if either vector has zero magnitude or lengths differ.
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

// sanitiseFTSQuery converts a free-form user query into a safe FTS5 MATCH
// expression. It strips FTS5-special characters, removes common stop words,
// and uses prefix matching (term*) for better recall.
//
// Example: "Where does Julian work?" → "julian* OR work*"
func sanitiseFTSQuery(query string) string {
	replacer := strings.NewReplacer(
		`"`, ` `,
		`'`, ` `,
		`(`, ` `,
		`)`, ` `,
		`*`, ` `,
		`-`, ` `,
		`^`, ` `,
		`?`, ` `,
		`:`, ` `,
		`.`, ` `,
		`,`, ` `,
	)
	cleaned := replacer.Replace(query)

	words := strings.Fields(strings.ToLower(cleaned))

	var terms []string
	for _, w := range words {
		if !ftsStopWords[w] && len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}

	if len(terms) == 0 {
		// All words were stop words. Lowercase the cleaned text so FTS5
		// does not interpret uppercase AND/OR/NOT as operators.
		return strings.ToLower(strings.TrimSpace(cleaned))
	}
	return strings.Join(terms, " OR ")
}

// ftsStopWords are query words that carry no discriminative value.
var ftsStopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "shall": true, "can": true,
	"to": true, "of": true, "in": true, "on": true, "at": true,
	"by": true, "for": true, "with": true, "from": true, "as": true,
	"about": true, "into": true, "through": true, "during": true,
	"what": true, "how": true, "when": true, "where": true, "why": true,
	"who": true, "which": true,
	"this": true, "that": true, "these": true, "those": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
	"and": true, "or": true, "but": true, "if": true, "not": true,
	"s": true, "t": true, // post-apostrophe fragments e.g. "Julian's" → "julian" + "s"
}
