package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/keeper/internal/extract"
	"github.com/scrypster/keeper/pkg/types"
)

func seedDocument(t *testing.T, store docPutter, id, title, content string, entities []string, embedding []float32) {
	t.Helper()
	now := time.Now().UTC()
	err := store.PutDocument(context.Background(), &types.Document{
		ID:        id,
		Title:     title,
		Content:   content,
		Entities:  entities,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
}

type docPutter interface {
	PutDocument(ctx context.Context, doc *types.Document) error
}

func TestSearch_KeywordTitleBoost(t *testing.T) {
	store := newTestStore(t)
	r := NewRetrieval(store, nil, nil)

	seedDocument(t, store, "doc:title", "Design review", "weekly sync notes", nil, nil)
	seedDocument(t, store, "doc:body", "Weekly notes", "the design review went long, review again later", nil, nil)

	results, err := r.Search(context.Background(), "design review", types.SearchKeyword, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Title hits count double, so one title occurrence of each term
	// outranks three body occurrences.
	assert.Equal(t, "doc:title", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_HybridAccumulatesWithoutDuplicates(t *testing.T) {
	store := newTestStore(t)
	r := NewRetrieval(store, nil, extract.NewPatternExtractor())

	seedDocument(t, store, "doc:1", "Julian notes", "Julian joined the design team", []string{"Julian"}, nil)

	results, err := r.Search(context.Background(), "my brother Julian", types.SearchHybrid, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// One entity reference scores 10, scaled by the entity weight 1.2;
	// keyword hits stack on top of the same merged result.
	assert.Equal(t, "doc:1", results[0].ID)
	assert.Greater(t, results[0].Score, 12.0)
}

func TestSearch_SemanticDegradesSilently(t *testing.T) {
	store := newTestStore(t)
	r := NewRetrieval(store, nil, nil)

	seedDocument(t, store, "doc:1", "Notes", "some keyword content", nil, []float32{1, 0})

	results, err := r.Search(context.Background(), "keyword", types.SearchSemantic, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Hybrid mode still returns the keyword strategy's output.
	results, err = r.Search(context.Background(), "keyword", types.SearchHybrid, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc:1", results[0].ID)
}

func TestSearch_SemanticFloor(t *testing.T) {
	store := newTestStore(t)
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	r := NewRetrieval(store, embedder, nil)

	seedDocument(t, store, "doc:close", "Close", "near the query", nil, []float32{1, 0.1})
	seedDocument(t, store, "doc:far", "Far", "unrelated", nil, []float32{0.1, 1})

	results, err := r.Search(context.Background(), "anything", types.SearchSemantic, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc:close", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, semanticFloorSearch)
}

func TestSearch_TruncatesAfterMerging(t *testing.T) {
	store := newTestStore(t)
	r := NewRetrieval(store, nil, nil)

	seedDocument(t, store, "doc:1", "go notes", "go go go", nil, nil)
	seedDocument(t, store, "doc:2", "misc", "go once", nil, nil)
	seedDocument(t, store, "doc:3", "go digest", "go twice: go", nil, nil)

	results, err := r.Search(context.Background(), "go", types.SearchKeyword, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The best-scoring documents survive the crop.
	assert.Equal(t, "doc:1", results[0].ID)
	assert.Equal(t, "doc:3", results[1].ID)
}

func TestQueryEntities_MergesNameAndSemanticMatches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	r := NewRetrieval(store, embedder, extract.NewPatternExtractor())

	julian := types.NewEntity(types.EntityPerson, "Julian")
	julian.Embedding = []float32{1, 0}
	require.NoError(t, store.PutEntity(ctx, julian))

	apple := types.NewEntity(types.EntityOrganization, "Apple")
	apple.Embedding = []float32{0.9, 0.1}
	require.NoError(t, store.PutEntity(ctx, apple))

	results, err := r.QueryEntities(ctx, "my brother Julian", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Julian matches by name and by vector; the scores accumulate and
	// put him first, with no duplicate entries.
	assert.Equal(t, julian.ID, results[0].ID)
	seen := make(map[string]bool)
	for _, res := range results {
		assert.False(t, seen[res.ID], "duplicate result %s", res.ID)
		seen[res.ID] = true
	}
	assert.True(t, seen[apple.ID])
}

func TestMergeResults_FirstOccurrenceWinsPayload(t *testing.T) {
	a := []SearchResult{{Kind: KindDocument, ID: "doc:1", Title: "first", Score: 1}}
	b := []SearchResult{{Kind: KindDocument, ID: "doc:1", Title: "second", Score: 2}}

	merged := mergeResults(a, b)
	require.Len(t, merged, 1)
	assert.Equal(t, "first", merged[0].Title)
	assert.Equal(t, 3.0, merged[0].Score)
}

func TestErrorTerms(t *testing.T) {
	terms := errorTerms(`error: NotFoundError in storage.GetEntity ("entity missing")`)
	assert.Contains(t, terms, "notfounderror")
	assert.Contains(t, terms, "storage.getentity")
	assert.Contains(t, terms, "entity missing")

	assert.Empty(t, errorTerms("where does Julian work"), "ordinary queries get no error expansion")
}
