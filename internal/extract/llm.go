package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/keeper/internal/llm"
	"github.com/scrypster/keeper/pkg/types"
)

// LLMExtractor extracts entities and relationships by prompting a language
// model for strict JSON output. Transport failures (including an open
// circuit breaker) surface as ErrUnavailable so the caller can fall back
// to pattern extraction.
type LLMExtractor struct {
	generator llm.TextGenerator
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor creates an extractor backed by the given text generator.
func NewLLMExtractor(generator llm.TextGenerator) *LLMExtractor {
	return &LLMExtractor{generator: generator}
}

// extractionPrompt produces a strict JSON-only prompt. Local models drift
// easily, so the prompt repeats the structure requirements and gives an
// exact example.
func extractionPrompt(text string) string {
	return fmt.Sprintf(`TASK: Extract entities and relationships from text.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

ENTITY TYPES (ONLY these):
person, organization, project, skill, location, event, concept, document, task, goal

RELATIONSHIP TYPES (ONLY these):
works_at, knows, located_in, part_of, related_to, created_by, manages, reports_to, collaborates_with, depends_on

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }
{
  "entities": [
    {"name":"Alice","type":"person","confidence":0.95,"attributes":{"company":"Google","role":"engineer"}}
  ],
  "relationships": [
    {"from":"Alice","to":"Google","type":"works_at","confidence":0.9,"temporal_context":"current"}
  ]
}

RULES:
1. Entity types and relationship types EXACTLY from the lists above
2. Confidence 0.0-1.0
3. "attributes" is an object of string values; use {} when none apply
4. "from" and "to" must be entity names from the "entities" array
5. "temporal_context" is optional free text ("current", "2019-2021", ...)
6. No trailing commas, no null values, no extra fields

TEXT TO EXTRACT FROM:
%s

RESPOND WITH ONLY THE JSON OBJECT (nothing else):`, text)
}

type llmEntity struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Confidence float64           `json:"confidence"`
	Attributes map[string]string `json:"attributes"`
}

type llmRelationship struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	Type            string  `json:"type"`
	Confidence      float64 `json:"confidence"`
	TemporalContext string  `json:"temporal_context"`
}

type llmExtractionResponse struct {
	Entities      []llmEntity       `json:"entities"`
	Relationships []llmRelationship `json:"relationships"`
}

// Extract prompts the model and converts the parsed response into graph
// records. Entities with invalid types are skipped rather than failing the
// batch; relationships referencing unknown or skipped entities are dropped.
func (e *LLMExtractor) Extract(ctx context.Context, text, source string) (*Extraction, error) {
	raw, err := e.generator.Complete(ctx, extractionPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var resp llmExtractionResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("malformed extraction response: %w", err)
	}

	now := time.Now().UTC()
	b := newBuilder(source, now)

	for _, le := range resp.Entities {
		name := strings.TrimSpace(le.Name)
		entityType := types.EntityType(strings.ToLower(strings.TrimSpace(le.Type)))
		if name == "" || !types.IsValidEntityType(entityType) {
			continue
		}
		entity := b.entity(entityType, name)
		entity.Confidence = confidenceFromScore(le.Confidence)
		for key, value := range le.Attributes {
			if key == "" || value == "" {
				continue
			}
			entity.AddAttribute(key, value, entity.Confidence, source, now)
		}
	}

	for _, lr := range resp.Relationships {
		relType := types.RelationType(strings.ToLower(strings.TrimSpace(lr.Type)))
		if !types.IsValidRelationType(relType) {
			continue
		}
		from := b.lookup(strings.TrimSpace(lr.From))
		to := b.lookup(strings.TrimSpace(lr.To))
		if from == nil || to == nil {
			continue
		}
		rel := b.relationship(relType, from, to)
		rel.Confidence = confidenceFromScore(lr.Confidence)
		rel.TemporalContext = strings.TrimSpace(lr.TemporalContext)
	}

	return b.result(), nil
}

// confidenceFromScore maps a numeric model score onto the ordinal levels.
// Model output never earns "verified"; that level is reserved for
// user-confirmed facts.
func confidenceFromScore(score float64) types.ConfidenceLevel {
	switch {
	case score >= 0.85:
		return types.ConfidenceHigh
	case score >= 0.6:
		return types.ConfidenceMedium
	case score >= 0.35:
		return types.ConfidenceLow
	default:
		return types.ConfidenceUncertain
	}
}

// extractJSON pulls the first balanced JSON object out of model output
// that may contain stray prose or markdown fences despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}
