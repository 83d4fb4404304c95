package types_test

import (
	"testing"

	"github.com/scrypster/keeper/pkg/types"
)

func TestIsValidEntityType(t *testing.T) {
	for _, et := range types.ValidEntityTypes {
		if !types.IsValidEntityType(et) {
			t.Errorf("expected %q to be a valid entity type", et)
		}
	}

	invalid := []types.EntityType{"", "PERSON", "Person", "spaceship", " person"}
	for _, et := range invalid {
		if types.IsValidEntityType(et) {
			t.Errorf("expected %q to be invalid", et)
		}
	}
}

func TestIsValidRelationType(t *testing.T) {
	valid := []types.RelationType{
		types.RelWorksAt, types.RelKnows, types.RelManages,
	}
	for _, rt := range valid {
		if !types.IsValidRelationType(rt) {
			t.Errorf("expected %q to be a valid relation type", rt)
		}
	}
	if types.IsValidRelationType("owns") {
		t.Error("expected 'owns' to be invalid")
	}
}

// TestConfidenceRanking pins the ordering used throughout conflict
// resolution: verified > high > medium > low > uncertain.
func TestConfidenceRanking(t *testing.T) {
	order := []types.ConfidenceLevel{
		types.ConfidenceUncertain,
		types.ConfidenceLow,
		types.ConfidenceMedium,
		types.ConfidenceHigh,
		types.ConfidenceVerified,
	}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %q to outrank %q", order[i], order[i-1])
		}
	}
	if types.ConfidenceLevel("bogus").Rank() != -1 {
		t.Error("expected unknown confidence to rank below everything")
	}
}

func TestQueryContextNormalize(t *testing.T) {
	qc := types.QueryContext{Query: "  who is Julian  "}
	qc.Normalize()
	if qc.Mode != types.SearchHybrid {
		t.Errorf("expected default mode hybrid, got %q", qc.Mode)
	}
	if qc.MaxResults != 10 {
		t.Errorf("expected default max results 10, got %d", qc.MaxResults)
	}

	qc = types.QueryContext{Query: "x", Mode: types.SearchKeyword, MaxResults: 500}
	qc.Normalize()
	if qc.MaxResults != 100 {
		t.Errorf("expected max results capped at 100, got %d", qc.MaxResults)
	}
	if qc.Mode != types.SearchKeyword {
		t.Errorf("expected explicit mode preserved, got %q", qc.Mode)
	}
}

func TestDocumentReferencesEntity(t *testing.T) {
	doc := types.Document{
		Title:    "Meeting with Julian",
		Entities: []string{"Julian", "Apple", "JULIAN"},
	}
	if got := doc.ReferencesEntity("julian"); got != 2 {
		t.Errorf("expected 2 case-insensitive references, got %d", got)
	}
	if got := doc.ReferencesEntity("Marta"); got != 0 {
		t.Errorf("expected 0 references, got %d", got)
	}
}

func TestNewRelationshipID(t *testing.T) {
	src := types.NewEntityID(types.EntityPerson, "Julian")
	dst := types.NewEntityID(types.EntityOrganization, "Apple")

	a := types.NewRelationshipID(types.RelWorksAt, src, dst)
	b := types.NewRelationshipID(types.RelWorksAt, src, dst)
	if a != b {
		t.Errorf("expected deterministic relationship IDs, got %q and %q", a, b)
	}

	rel := types.NewRelationship(types.RelWorksAt, src, dst)
	if !rel.Involves(src) || !rel.Involves(dst) {
		t.Error("expected relationship to involve both endpoints")
	}
	if rel.Involves("ent:person:ghost") {
		t.Error("expected no involvement for unrelated entity")
	}
}
