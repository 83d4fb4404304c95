// Package extract turns free text into candidate entities and
// relationships for the knowledge graph. Two implementations exist: an
// LLM-backed extractor and a pattern-matching fallback that needs no
// external service. Both satisfy the same Extractor interface so the graph
// manager never cares which one produced a result.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/keeper/pkg/types"
)

// ErrUnavailable indicates the extraction collaborator could not be
// reached. Callers degrade to the next extractor in the chain instead of
// failing the ingest.
var ErrUnavailable = errors.New("extraction collaborator unavailable")

// Extraction is the result of one extraction pass over a piece of text.
type Extraction struct {
	Entities      []*types.Entity
	Relationships []*types.Relationship
}

// Extractor extracts entities and relationships from free text. The source
// tag is attached to every produced record for provenance.
type Extractor interface {
	Extract(ctx context.Context, text, source string) (*Extraction, error)
}

// fallbackExtractor tries each extractor in order until one succeeds.
type fallbackExtractor struct {
	chain []Extractor
}

// Fallback combines extractors into a chain: each is tried in order and
// the first successful result wins. An extractor returning ErrUnavailable
// (or any other error) passes control to the next one. Only when every
// extractor fails is an error returned.
func Fallback(extractors ...Extractor) Extractor {
	return &fallbackExtractor{chain: extractors}
}

func (f *fallbackExtractor) Extract(ctx context.Context, text, source string) (*Extraction, error) {
	var lastErr error
	for _, e := range f.chain {
		if e == nil {
			continue
		}
		result, err := e.Extract(ctx, text, source)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: no extractors configured", ErrUnavailable)
	}
	return nil, lastErr
}
