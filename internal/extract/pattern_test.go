package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/keeper/pkg/types"
)

func findEntity(ex *Extraction, name string) *types.Entity {
	for _, e := range ex.Entities {
		if e.Matches(name) {
			return e
		}
	}
	return nil
}

func findRelationship(ex *Extraction, t types.RelationType) *types.Relationship {
	for _, r := range ex.Relationships {
		if r.Type == t {
			return r
		}
	}
	return nil
}

// TestPatternExtract_WorkSentence covers the canonical family+work sentence:
// person, organization, works_at link, and work attributes for routing.
func TestPatternExtract_WorkSentence(t *testing.T) {
	ex, err := NewPatternExtractor().Extract(context.Background(),
		"My brother Julian works at Apple as a designer.", "note-1")
	require.NoError(t, err)

	julian := findEntity(ex, "Julian")
	require.NotNil(t, julian, "Julian must be extracted")
	assert.Equal(t, types.EntityPerson, julian.Type)

	apple := findEntity(ex, "Apple")
	require.NotNil(t, apple, "Apple must be extracted")
	assert.Equal(t, types.EntityOrganization, apple.Type)

	worksAt := findRelationship(ex, types.RelWorksAt)
	require.NotNil(t, worksAt, "works_at relationship must be extracted")
	assert.Equal(t, julian.ID, worksAt.SourceID)
	assert.Equal(t, apple.ID, worksAt.TargetID)

	company := julian.LatestAttribute("company")
	require.NotNil(t, company)
	assert.Equal(t, "Apple", company.Value)

	role := julian.LatestAttribute("role")
	require.NotNil(t, role)
	assert.Equal(t, "designer", role.Value)

	relation := julian.LatestAttribute("relation")
	require.NotNil(t, relation)
	assert.Equal(t, "brother", relation.Value)

	related := findRelationship(ex, types.RelRelatedTo)
	require.NotNil(t, related, "family link must anchor to a self entity")
}

// TestPatternExtract_FirstPerson verifies "I work at X" anchors to the
// self entity with a company attribute.
func TestPatternExtract_FirstPerson(t *testing.T) {
	ex, err := NewPatternExtractor().Extract(context.Background(),
		"I work at Globex as an engineer.", "note-2")
	require.NoError(t, err)

	self := findEntity(ex, "Me")
	require.NotNil(t, self)
	company := self.LatestAttribute("company")
	require.NotNil(t, company)
	assert.Equal(t, "Globex", company.Value)

	worksAt := findRelationship(ex, types.RelWorksAt)
	require.NotNil(t, worksAt)
	assert.Equal(t, self.ID, worksAt.SourceID)
}

// TestPatternExtract_LocatedIn verifies subject reuse across patterns.
func TestPatternExtract_LocatedIn(t *testing.T) {
	ex, err := NewPatternExtractor().Extract(context.Background(),
		"Julian works at Apple. Julian lives in Berlin.", "note-3")
	require.NoError(t, err)

	berlin := findEntity(ex, "Berlin")
	require.NotNil(t, berlin)
	assert.Equal(t, types.EntityLocation, berlin.Type)

	locatedIn := findRelationship(ex, types.RelLocatedIn)
	require.NotNil(t, locatedIn)
	julian := findEntity(ex, "Julian")
	assert.Equal(t, julian.ID, locatedIn.SourceID, "the existing Julian entity is reused, not duplicated")
}

// TestPatternExtract_NoDuplicates verifies repeated mentions collapse to
// one entity and one relationship.
func TestPatternExtract_NoDuplicates(t *testing.T) {
	ex, err := NewPatternExtractor().Extract(context.Background(),
		"Julian works at Apple. Julian works at Apple.", "note-4")
	require.NoError(t, err)

	count := 0
	for _, e := range ex.Entities {
		if e.Matches("Julian") {
			count++
		}
	}
	assert.Equal(t, 1, count, "Julian extracted once")

	rels := 0
	for _, r := range ex.Relationships {
		if r.Type == types.RelWorksAt {
			rels++
		}
	}
	assert.Equal(t, 1, rels, "works_at deduplicated by (source, target, type)")
}

// TestPatternExtract_EmptyText returns an empty extraction, not an error.
func TestPatternExtract_EmptyText(t *testing.T) {
	ex, err := NewPatternExtractor().Extract(context.Background(), "", "note-5")
	require.NoError(t, err)
	assert.Empty(t, ex.Entities)
	assert.Empty(t, ex.Relationships)
}
