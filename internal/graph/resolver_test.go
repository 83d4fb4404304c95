package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/keeper/pkg/types"
)

func TestResolve_NewEntityPassesThrough(t *testing.T) {
	store := newTestStore(t)
	r := NewResolver(store, MergeAverage)

	incoming := types.NewEntity(types.EntityPerson, "Julian")
	resolved, created, err := r.Resolve(context.Background(), incoming)
	require.NoError(t, err)

	assert.True(t, created)
	assert.Same(t, incoming, resolved)
}

func TestResolve_MergeAppendsHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	r := NewResolver(store, MergeAverage)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	existing := types.NewEntity(types.EntityPerson, "Julian")
	existing.AddAttribute("company", "Initech", types.ConfidenceHigh, "import", t0)
	require.NoError(t, store.PutEntity(ctx, existing))

	incoming := types.NewEntity(types.EntityPerson, "Julian")
	incoming.AddAttribute("company", "Globex", types.ConfidenceLow, "note", t0.Add(time.Hour))
	incoming.AddAlias("Jules")
	incoming.Sources = []string{"note"}
	incoming.Confidence = types.ConfidenceVerified

	merged, created, err := r.Resolve(ctx, incoming)
	require.NoError(t, err)
	assert.False(t, created)

	require.Len(t, merged.Attributes["company"], 2)
	assert.Equal(t, "Initech", merged.Attributes["company"][0].Value)
	assert.Equal(t, "Globex", merged.Attributes["company"][1].Value)
	assert.Equal(t, 2, merged.Attributes["company"][1].Version)
	assert.True(t, merged.Matches("Jules"))
	assert.Contains(t, merged.Sources, "note")
	assert.Equal(t, types.ConfidenceVerified, merged.Confidence)

	// The stored record is untouched until the caller persists the merge.
	stored, err := store.GetEntity(ctx, existing.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Attributes["company"], 1)
}

func TestResolve_IdentityErrors(t *testing.T) {
	store := newTestStore(t)
	r := NewResolver(store, MergeAverage)
	ctx := context.Background()

	_, _, err := r.Resolve(ctx, nil)
	assert.ErrorIs(t, err, ErrIdentity)

	_, _, err = r.Resolve(ctx, &types.Entity{Type: types.EntityPerson, Name: "Julian"})
	assert.ErrorIs(t, err, ErrIdentity)

	bad := types.NewEntity(types.EntityPerson, "Julian")
	bad.Type = "spaceship"
	_, _, err = r.Resolve(ctx, bad)
	assert.ErrorIs(t, err, ErrIdentity)
}

func TestMergeEmbeddings(t *testing.T) {
	average := NewResolver(nil, MergeAverage)
	recompute := NewResolver(nil, MergeRecompute)

	assert.Equal(t, []float32{2, 4}, average.mergeEmbeddings([]float32{1, 3}, []float32{3, 5}))
	assert.Equal(t, []float32{3, 5}, recompute.mergeEmbeddings([]float32{1, 3}, []float32{3, 5}))

	// A missing side yields the other.
	assert.Equal(t, []float32{3, 5}, average.mergeEmbeddings(nil, []float32{3, 5}))
	assert.Equal(t, []float32{1, 3}, average.mergeEmbeddings([]float32{1, 3}, nil))

	// Dimension mismatch keeps the incumbent.
	assert.Equal(t, []float32{1, 3}, average.mergeEmbeddings([]float32{1, 3}, []float32{1, 2, 3}))
}
