package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/keeper/pkg/types"
)

func testDoc(id, title, content string, entities []string, embedding []float32) *types.Document {
	now := time.Now().UTC()
	return &types.Document{
		ID:        id,
		Title:     title,
		Content:   content,
		Entities:  entities,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestKeywordSearch_BasicMatch verifies that FTS5 returns a document whose
// content contains the query term.
func TestKeywordSearch_BasicMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustPutDocument(t, store, testDoc("doc:1", "Work update",
		"Julian started a new position at Apple", nil, nil))
	mustPutDocument(t, store, testDoc("doc:2", "Garden notes",
		"The tomatoes need watering twice a week", nil, nil))

	docs, err := store.KeywordSearch(ctx, "Julian", 10)
	if err != nil {
		t.Fatalf("KeywordSearch() failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc:1" {
		t.Fatalf("KeywordSearch('Julian'): got %d docs, want exactly doc:1", len(docs))
	}
}

// TestKeywordSearch_TitleMatch verifies that title text is indexed too.
func TestKeywordSearch_TitleMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustPutDocument(t, store, testDoc("doc:1", "Quarterly budget review",
		"Numbers look fine", nil, nil))

	docs, err := store.KeywordSearch(ctx, "budget", 10)
	if err != nil {
		t.Fatalf("KeywordSearch() failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("KeywordSearch('budget'): got %d docs, want 1", len(docs))
	}
}

// TestKeywordSearch_HostileInput verifies that FTS5 operator characters in
// the query do not produce an error.
func TestKeywordSearch_HostileInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustPutDocument(t, store, testDoc("doc:1", "Note",
		"Julian works at Apple", nil, nil))

	for _, q := range []string{
		`"unbalanced quote`,
		`NOT AND OR`,
		`(paren*^:-`,
		`Where does Julian work?`,
	} {
		if _, err := store.KeywordSearch(ctx, q, 10); err != nil {
			t.Errorf("KeywordSearch(%q) returned error: %v", q, err)
		}
	}
}

// TestKeywordSearch_Update verifies that the FTS index tracks document
// updates through the sync triggers.
func TestKeywordSearch_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("doc:1", "Note", "Julian works at Apple", nil, nil)
	mustPutDocument(t, store, doc)

	doc.Content = "Maya joined the robotics project"
	mustPutDocument(t, store, doc)

	docs, err := store.KeywordSearch(ctx, "robotics", 10)
	if err != nil {
		t.Fatalf("KeywordSearch() failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("KeywordSearch('robotics') after update: got %d docs, want 1", len(docs))
	}

	stale, err := store.KeywordSearch(ctx, "Apple", 10)
	if err != nil {
		t.Fatalf("KeywordSearch() failed: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("KeywordSearch('Apple') after update: got %d docs, want 0", len(stale))
	}
}

// TestDocumentsByEntity verifies exact, case-insensitive membership against
// the document entity list.
func TestDocumentsByEntity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustPutDocument(t, store, testDoc("doc:1", "Note",
		"Julian works at Apple", []string{"Julian", "Apple"}, nil))
	mustPutDocument(t, store, testDoc("doc:2", "Snack list",
		"Buy apples and bananas", []string{"Groceries"}, nil))

	docs, err := store.DocumentsByEntity(ctx, "apple", 10)
	if err != nil {
		t.Fatalf("DocumentsByEntity() failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc:1" {
		t.Fatalf("DocumentsByEntity('apple'): got %d docs, want exactly doc:1", len(docs))
	}

	// "Groceries" contains the substring but is not the exact name "grocer".
	docs, err = store.DocumentsByEntity(ctx, "grocer", 10)
	if err != nil {
		t.Fatalf("DocumentsByEntity() failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("DocumentsByEntity('grocer'): got %d docs, want 0", len(docs))
	}
}

// TestDocumentVectorSearch verifies cosine ranking over stored embeddings
// and that documents without embeddings are skipped.
func TestDocumentVectorSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustPutDocument(t, store, testDoc("doc:close", "A", "close", nil, []float32{1, 0, 0}))
	mustPutDocument(t, store, testDoc("doc:far", "B", "far", nil, []float32{0, 1, 0}))
	mustPutDocument(t, store, testDoc("doc:none", "C", "no embedding", nil, nil))

	scored, err := store.DocumentVectorSearch(ctx, []float32{0.9, 0.1, 0}, 10)
	if err != nil {
		t.Fatalf("DocumentVectorSearch() failed: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("got %d scored docs, want 2 (doc without embedding skipped)", len(scored))
	}
	if scored[0].Document.ID != "doc:close" {
		t.Errorf("best match: got %s, want doc:close", scored[0].Document.ID)
	}
	if scored[0].Score <= scored[1].Score {
		t.Errorf("scores not descending: %v then %v", scored[0].Score, scored[1].Score)
	}
}

// TestEntityVectorSearch verifies cosine ranking over entity embeddings.
func TestEntityVectorSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	julian := types.NewEntity(types.EntityPerson, "Julian")
	julian.Embedding = []float32{1, 0}
	maya := types.NewEntity(types.EntityPerson, "Maya")
	maya.Embedding = []float32{0, 1}
	mustPutEntity(t, store, julian)
	mustPutEntity(t, store, maya)

	scored, err := store.EntityVectorSearch(ctx, []float32{1, 0.2}, 1)
	if err != nil {
		t.Fatalf("EntityVectorSearch() failed: %v", err)
	}
	if len(scored) != 1 {
		t.Fatalf("got %d scored entities, want 1 (limit applied)", len(scored))
	}
	if scored[0].Entity.Name != "Julian" {
		t.Errorf("best match: got %s, want Julian", scored[0].Entity.Name)
	}
}

// TestCosineSimilarity covers the degenerate inputs.
func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: got %v, want ~1", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: got %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("length mismatch: got %v, want 0", got)
	}
	if got := cosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors: got %v, want 0", got)
	}
}

// TestSanitiseFTSQuery verifies stop-word removal and prefix expansion.
func TestSanitiseFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Where does Julian work?", "julian* OR work*"},
		{"Julian's company", "julian* OR company*"},
		{"the is a", "the is a"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := sanitiseFTSQuery(tc.in); got != tc.want {
			t.Errorf("sanitiseFTSQuery(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
