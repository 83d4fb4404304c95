// Package graph implements the knowledge graph core: entity identity
// resolution, attribute conflict resolution, canonical-location routing,
// multi-strategy retrieval, and the manager that orchestrates them into
// the public ingest and query operations.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/keeper/internal/storage"
	"github.com/scrypster/keeper/pkg/types"
)

// ErrIdentity indicates an entity reached the resolver without a
// deterministic identity. Fatal to the single operation, not the process.
var ErrIdentity = errors.New("entity lacks a deterministic identity")

// EmbeddingMergeStrategy selects how embeddings combine when two
// observations of one entity merge.
type EmbeddingMergeStrategy string

const (
	// MergeAverage takes the element-wise mean of the two vectors. Cheap
	// running approximation; drifts over many merges.
	MergeAverage EmbeddingMergeStrategy = "average"

	// MergeRecompute replaces the stored vector with the incoming one,
	// which the manager computes fresh from the observation's full
	// profile. Avoids the drift of repeated averaging.
	MergeRecompute EmbeddingMergeStrategy = "recompute"
)

// Resolver merges freshly extracted entities into the existing store by
// identity. It only reads from the store; the caller persists the merged
// result (the manager batches all writes of one ingest into a single
// transaction).
type Resolver struct {
	store     storage.EntityStore
	embedding EmbeddingMergeStrategy
}

// NewResolver creates a resolver reading from the given store.
func NewResolver(store storage.EntityStore, embedding EmbeddingMergeStrategy) *Resolver {
	if embedding == "" {
		embedding = MergeAverage
	}
	return &Resolver{store: store, embedding: embedding}
}

// Resolve produces the entity that should represent the extracted input
// going forward. If no entity with that identity exists, the input is
// returned verbatim with created=true. Otherwise the input is merged into
// the stored record: every incoming attribute version is appended to
// history (repeated observations count as evidence), aliases are unioned,
// and embeddings combine per the configured strategy. The result is a
// fresh value; the stored record is not mutated.
func (r *Resolver) Resolve(ctx context.Context, incoming *types.Entity) (*types.Entity, bool, error) {
	if incoming == nil || incoming.ID == "" {
		return nil, false, ErrIdentity
	}
	if !types.IsValidEntityType(incoming.Type) {
		return nil, false, fmt.Errorf("%w: invalid type %q", ErrIdentity, incoming.Type)
	}

	existing, err := r.store.GetEntity(ctx, incoming.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return incoming, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resolve %s: %w", incoming.ID, err)
	}

	merged := existing.Clone()

	// Append every incoming version; history is evidence, not state.
	for key, history := range incoming.Attributes {
		for _, attr := range history {
			merged.AddAttribute(key, attr.Value, attr.Confidence, attr.Source, attr.Timestamp)
		}
	}

	if incoming.Name != "" && !merged.Matches(incoming.Name) {
		merged.AddAlias(incoming.Name)
	}
	for _, alias := range incoming.Aliases {
		merged.AddAlias(alias)
	}

	for _, source := range incoming.Sources {
		merged.AddSource(source)
	}

	if incoming.Confidence.Rank() > merged.Confidence.Rank() {
		merged.Confidence = incoming.Confidence
	}

	merged.Embedding = r.mergeEmbeddings(merged.Embedding, incoming.Embedding)

	// Resolution time, regardless of whether any field changed.
	merged.Touch()

	return merged, false, nil
}

// mergeEmbeddings combines two vectors per the configured strategy. A
// missing side always yields the other.
func (r *Resolver) mergeEmbeddings(incumbent, incoming []float32) []float32 {
	switch {
	case len(incumbent) == 0:
		return incoming
	case len(incoming) == 0:
		return incumbent
	case len(incumbent) != len(incoming):
		// Dimension mismatch means one side came from a different
		// embedding model; keep the incumbent.
		return incumbent
	}

	if r.embedding == MergeRecompute {
		return incoming
	}

	mean := make([]float32, len(incumbent))
	for i := range incumbent {
		mean[i] = (incumbent[i] + incoming[i]) / 2
	}
	return mean
}
