package graph

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/scrypster/keeper/internal/extract"
	"github.com/scrypster/keeper/internal/llm"
	"github.com/scrypster/keeper/internal/storage"
	"github.com/scrypster/keeper/pkg/types"
)

// Scoring constants. The title boost biases keyword results toward
// on-topic documents; the entity weight reflects that an explicit entity
// reference is stronger evidence than free-text overlap.
const (
	titleBoost        = 2.0
	entityMatchWeight = 10.0

	// Similarity floors for the semantic strategy. Standalone document
	// search wants precision; entity graph queries want recall.
	semanticFloorSearch = 0.5
	semanticFloorGraph  = 0.3

	// Per-strategy weights applied when hybrid mode merges result lists.
	hybridWeightSemantic = 1.0
	hybridWeightKeyword  = 0.8
	hybridWeightEntity   = 1.2

	// Strategies over-fetch so the merged union is ranked before cropping.
	overfetchFactor = 4
)

// ResultKind distinguishes what a search result carries.
type ResultKind string

const (
	KindDocument ResultKind = "document"
	KindEntity   ResultKind = "entity"
)

// SearchResult is one ranked retrieval hit. Exactly one of Document and
// Entity is set, matching Kind.
type SearchResult struct {
	Kind     ResultKind      `json:"kind"`
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Score    float64         `json:"score"`
	Document *types.Document `json:"document,omitempty"`
	Entity   *types.Entity   `json:"entity,omitempty"`
}

// Retrieval executes keyword, semantic, and entity search strategies and
// merges them into a single ranked list. The embedder and extractor are
// optional: without an embedder the semantic strategy silently returns
// nothing, and without an extractor the entity strategy is skipped.
type Retrieval struct {
	store     storage.GraphStore
	embedder  llm.EmbeddingGenerator
	extractor extract.Extractor
}

// NewRetrieval creates a retrieval engine over the given store.
func NewRetrieval(store storage.GraphStore, embedder llm.EmbeddingGenerator, extractor extract.Extractor) *Retrieval {
	return &Retrieval{store: store, embedder: embedder, extractor: extractor}
}

// Search runs the requested strategy and returns at most limit results,
// ranked descending by score. Hybrid mode runs every strategy, scales each
// list by its strategy weight, and merges before truncating.
func (r *Retrieval) Search(ctx context.Context, query string, mode types.SearchMode, limit int) ([]SearchResult, error) {
	qc := types.QueryContext{Query: query, Mode: mode, MaxResults: limit}
	qc.Normalize()

	switch qc.Mode {
	case types.SearchKeyword:
		results, err := r.keywordSearch(ctx, qc.Query, qc.MaxResults)
		if err != nil {
			return nil, err
		}
		return truncate(results, qc.MaxResults), nil
	case types.SearchSemantic:
		results, err := r.semanticSearch(ctx, qc.Query, qc.MaxResults, semanticFloorSearch)
		if err != nil {
			return nil, err
		}
		return truncate(results, qc.MaxResults), nil
	case types.SearchEntity:
		results, err := r.entitySearch(ctx, qc.Query, qc.MaxResults)
		if err != nil {
			return nil, err
		}
		return truncate(results, qc.MaxResults), nil
	default:
		return r.hybridSearch(ctx, qc.Query, qc.MaxResults)
	}
}

func (r *Retrieval) hybridSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	keyword, err := r.keywordSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	semantic, err := r.semanticSearch(ctx, query, limit, semanticFloorSearch)
	if err != nil {
		return nil, err
	}
	entity, err := r.entitySearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	scale(semantic, hybridWeightSemantic)
	scale(keyword, hybridWeightKeyword)
	scale(entity, hybridWeightEntity)

	merged := mergeResults(semantic, keyword, entity)
	return truncate(merged, limit), nil
}

// keywordSearch scores documents by term frequency in content plus a
// title boost. The store over-fetches candidates; scoring happens here so
// ranking is identical across storage backends.
func (r *Retrieval) keywordSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	docs, err := r.store.KeywordSearch(ctx, query, limit*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	terms := queryTerms(query)
	terms = append(terms, errorTerms(query)...)
	results := make([]SearchResult, 0, len(docs))
	for i := range docs {
		doc := docs[i]
		score := keywordScore(&doc, terms)
		results = append(results, SearchResult{
			Kind:     KindDocument,
			ID:       doc.ID,
			Title:    doc.Title,
			Score:    score,
			Document: &doc,
		})
	}
	sortResults(results)
	return results, nil
}

// semanticSearch ranks documents by cosine similarity against the query
// embedding, discarding hits below the floor. Without embedding capability
// it returns nothing so other strategies are unaffected.
func (r *Retrieval) semanticSearch(ctx context.Context, query string, limit int, floor float64) ([]SearchResult, error) {
	vector := r.embedQuery(ctx, query)
	if vector == nil {
		return nil, nil
	}

	scored, err := r.store.DocumentVectorSearch(ctx, vector, limit*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	results := make([]SearchResult, 0, len(scored))
	for i := range scored {
		if scored[i].Score < floor {
			continue
		}
		doc := scored[i].Document
		results = append(results, SearchResult{
			Kind:     KindDocument,
			ID:       doc.ID,
			Title:    doc.Title,
			Score:    scored[i].Score,
			Document: &doc,
		})
	}
	return results, nil
}

// entitySearch extracts entity names from the query itself and finds
// documents referencing them by exact case-insensitive name. Score is the
// number of matching references times a fixed weight.
func (r *Retrieval) entitySearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	names := r.queryEntityNames(ctx, query)
	if len(names) == 0 {
		return nil, nil
	}

	var results []SearchResult
	seen := make(map[string]int) // doc ID -> index in results
	for _, name := range names {
		docs, err := r.store.DocumentsByEntity(ctx, name, limit*overfetchFactor)
		if err != nil {
			return nil, fmt.Errorf("entity search %q: %w", name, err)
		}
		for i := range docs {
			doc := docs[i]
			score := float64(doc.ReferencesEntity(name)) * entityMatchWeight
			if idx, ok := seen[doc.ID]; ok {
				results[idx].Score += score
				continue
			}
			seen[doc.ID] = len(results)
			results = append(results, SearchResult{
				Kind:     KindDocument,
				ID:       doc.ID,
				Title:    doc.Title,
				Score:    score,
				Document: &doc,
			})
		}
	}
	sortResults(results)
	return results, nil
}

// QueryEntities resolves a free-text query to matching entities for graph
// queries: exact name matches from extracted spans, plus semantic
// neighbours above the graph floor, merged and ranked.
func (r *Retrieval) QueryEntities(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	var byName []SearchResult
	for _, name := range r.queryEntityNames(ctx, query) {
		entities, err := r.store.EntitiesByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("entities by name %q: %w", name, err)
		}
		for i := range entities {
			ent := entities[i]
			byName = append(byName, SearchResult{
				Kind:   KindEntity,
				ID:     ent.ID,
				Title:  ent.Name,
				Score:  entityMatchWeight,
				Entity: &ent,
			})
		}
	}

	var semantic []SearchResult
	if vector := r.embedQuery(ctx, query); vector != nil {
		scored, err := r.store.EntityVectorSearch(ctx, vector, limit*overfetchFactor)
		if err != nil {
			return nil, fmt.Errorf("entity vector search: %w", err)
		}
		for i := range scored {
			if scored[i].Score < semanticFloorGraph {
				continue
			}
			ent := scored[i].Entity
			semantic = append(semantic, SearchResult{
				Kind:   KindEntity,
				ID:     ent.ID,
				Title:  ent.Name,
				Score:  scored[i].Score,
				Entity: &ent,
			})
		}
	}

	scale(byName, hybridWeightEntity)
	scale(semantic, hybridWeightSemantic)

	merged := mergeResults(byName, semantic)
	return truncate(merged, limit), nil
}

// embedQuery returns the query embedding or nil when embedding capability
// is missing or failing. Failures are logged, never propagated: semantic
// retrieval degrades silently.
func (r *Retrieval) embedQuery(ctx context.Context, query string) []float32 {
	if r.embedder == nil {
		return nil
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("retrieval: WARNING: query embedding unavailable, skipping semantic strategy: %v", err)
		return nil
	}
	return vector
}

// queryEntityNames extracts candidate entity names from the query text.
func (r *Retrieval) queryEntityNames(ctx context.Context, query string) []string {
	if r.extractor == nil {
		return nil
	}
	extraction, err := r.extractor.Extract(ctx, query, "query")
	if err != nil || extraction == nil {
		return nil
	}
	names := make([]string, 0, len(extraction.Entities))
	for _, ent := range extraction.Entities {
		names = append(names, ent.Name)
	}
	return names
}

// mergeResults deduplicates across strategy lists by (kind, id). The first
// occurrence wins for payload; scores accumulate. Output is sorted
// descending by combined score, ties broken by discovery order.
func mergeResults(lists ...[]SearchResult) []SearchResult {
	type key struct {
		kind ResultKind
		id   string
	}
	var merged []SearchResult
	index := make(map[key]int)
	for _, list := range lists {
		for _, result := range list {
			k := key{result.Kind, result.ID}
			if idx, ok := index[k]; ok {
				merged[idx].Score += result.Score
				continue
			}
			index[k] = len(merged)
			merged = append(merged, result)
		}
	}
	sortResults(merged)
	return merged
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func scale(results []SearchResult, weight float64) {
	for i := range results {
		results[i].Score *= weight
	}
}

func truncate(results []SearchResult, limit int) []SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// keywordScore counts query term occurrences in the document, with title
// hits counting double.
func keywordScore(doc *types.Document, terms []string) float64 {
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)
	score := 0.0
	for _, term := range terms {
		score += float64(strings.Count(content, term))
		score += titleBoost * float64(strings.Count(title, term))
	}
	return score
}

var (
	errorIndicatorRe = regexp.MustCompile(`(?i)\b(error|panic|exception|failed|fatal)\b`)

	// Dotted identifiers (os.Open), CamelCase names (NotFoundError), and
	// double-quoted fragments from error messages.
	errorIdentRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+\b|\b[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]+)+\b|"[^"]+"`)
)

// errorTerms pulls salient identifiers out of error-like queries so pasted
// error messages match documents by the identifiers they name rather than
// by incidental words. Returns nothing for ordinary queries.
func errorTerms(query string) []string {
	if !errorIndicatorRe.MatchString(query) {
		return nil
	}
	matches := errorIdentRe.FindAllString(query, -1)
	terms := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.ToLower(strings.Trim(m, `"`))
		if len(m) >= 2 {
			terms = append(terms, m)
		}
	}
	return terms
}

// queryTerms lowercases and splits the query, dropping single-character
// fragments.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, `"'?.,!:;()`)
		if len(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}
