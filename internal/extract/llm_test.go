package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/keeper/pkg/types"
)

// stubGenerator returns a canned response or error.
type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) GetModel() string { return "stub" }

const wellFormedResponse = `{
  "entities": [
    {"name":"Julian","type":"person","confidence":0.95,"attributes":{"company":"Apple","role":"designer"}},
    {"name":"Apple","type":"organization","confidence":0.9,"attributes":{}},
    {"name":"Ghost","type":"spaceship","confidence":0.9,"attributes":{}}
  ],
  "relationships": [
    {"from":"Julian","to":"Apple","type":"works_at","confidence":0.9,"temporal_context":"current"},
    {"from":"Julian","to":"Ghost","type":"works_at","confidence":0.9},
    {"from":"Julian","to":"Apple","type":"orbits","confidence":0.9}
  ]
}`

// TestLLMExtract_ParsesAndFilters verifies valid records are converted and
// invalid types are skipped without failing the batch.
func TestLLMExtract_ParsesAndFilters(t *testing.T) {
	gen := &stubGenerator{response: wellFormedResponse}
	ex, err := NewLLMExtractor(gen).Extract(context.Background(), "irrelevant", "note-1")
	require.NoError(t, err)

	require.Len(t, ex.Entities, 2, "invalid entity type is dropped")

	julian := findEntity(ex, "Julian")
	require.NotNil(t, julian)
	assert.Equal(t, types.ConfidenceHigh, julian.Confidence)
	company := julian.LatestAttribute("company")
	require.NotNil(t, company)
	assert.Equal(t, "Apple", company.Value)

	require.Len(t, ex.Relationships, 1, "relationships to dropped entities and invalid types are skipped")
	rel := ex.Relationships[0]
	assert.Equal(t, types.RelWorksAt, rel.Type)
	assert.Equal(t, "current", rel.TemporalContext)
}

// TestLLMExtract_MarkdownFences verifies responses wrapped in code fences
// or prose still parse.
func TestLLMExtract_MarkdownFences(t *testing.T) {
	gen := &stubGenerator{response: "Here you go:\n```json\n" +
		`{"entities":[{"name":"Maya","type":"person","confidence":0.8,"attributes":{}}],"relationships":[]}` +
		"\n```\nLet me know if you need anything else!"}
	ex, err := NewLLMExtractor(gen).Extract(context.Background(), "x", "note-2")
	require.NoError(t, err)
	require.Len(t, ex.Entities, 1)
	assert.Equal(t, "Maya", ex.Entities[0].Name)
}

// TestLLMExtract_TransportFailure verifies transport errors surface as
// ErrUnavailable.
func TestLLMExtract_TransportFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("connection refused")}
	_, err := NewLLMExtractor(gen).Extract(context.Background(), "x", "note-3")
	assert.ErrorIs(t, err, ErrUnavailable)
}

// TestLLMExtract_MalformedJSON is an error but not ErrUnavailable: the
// collaborator responded, it just responded garbage.
func TestLLMExtract_MalformedJSON(t *testing.T) {
	gen := &stubGenerator{response: "I could not find any entities, sorry!"}
	_, err := NewLLMExtractor(gen).Extract(context.Background(), "x", "note-4")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

// TestFallback_ChainsToPattern verifies the fallback combinator degrades
// from a failing LLM extractor to pattern extraction.
func TestFallback_ChainsToPattern(t *testing.T) {
	gen := &stubGenerator{err: errors.New("connection refused")}
	chain := Fallback(NewLLMExtractor(gen), NewPatternExtractor())

	ex, err := chain.Extract(context.Background(), "Julian works at Apple.", "note-5")
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls, "LLM extractor tried first")
	assert.NotNil(t, findEntity(ex, "Julian"))
	assert.NotNil(t, findEntity(ex, "Apple"))
}

// TestFallback_FirstSuccessWins verifies the chain stops at the first
// successful extractor.
func TestFallback_FirstSuccessWins(t *testing.T) {
	gen := &stubGenerator{response: `{"entities":[{"name":"Maya","type":"person","confidence":0.9,"attributes":{}}],"relationships":[]}`}
	chain := Fallback(NewLLMExtractor(gen), NewPatternExtractor())

	ex, err := chain.Extract(context.Background(), "Julian works at Apple.", "note-6")
	require.NoError(t, err)
	assert.NotNil(t, findEntity(ex, "Maya"))
	assert.Nil(t, findEntity(ex, "Julian"), "pattern extractor never runs when the LLM succeeds")
}

// TestFallback_Empty reports unavailability when nothing is configured.
func TestFallback_Empty(t *testing.T) {
	_, err := Fallback().Extract(context.Background(), "x", "note-7")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestConfidenceFromScore(t *testing.T) {
	assert.Equal(t, types.ConfidenceHigh, confidenceFromScore(0.95))
	assert.Equal(t, types.ConfidenceMedium, confidenceFromScore(0.7))
	assert.Equal(t, types.ConfidenceLow, confidenceFromScore(0.4))
	assert.Equal(t, types.ConfidenceUncertain, confidenceFromScore(0.1))
}
