package types_test

import (
	"testing"
	"time"

	"github.com/scrypster/keeper/pkg/types"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Julian", "julian"},
		{"  Acme   Corp  ", "acme_corp"},
		{"Proj-X_v2", "proj_x_v2"},
		{"Hello, World!", "hello_world"},
		{"Ünïcode Näme", "ünïcode_näme"},
		{"---", ""},
		{"", ""},
		{"trailing space ", "trailing_space"},
	}
	for _, c := range cases {
		if got := types.Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestNewEntityIDDeterminism verifies the identity invariant: the same
// surface form always maps to the same record.
func TestNewEntityIDDeterminism(t *testing.T) {
	a := types.NewEntityID(types.EntityPerson, "Julian")
	b := types.NewEntityID(types.EntityPerson, "  julian ")
	if a != b {
		t.Errorf("expected identical IDs for equivalent names, got %q and %q", a, b)
	}
	if a != "ent:person:julian" {
		t.Errorf("unexpected ID format: %q", a)
	}

	other := types.NewEntityID(types.EntityOrganization, "Julian")
	if other == a {
		t.Error("expected different IDs for different entity types")
	}
}

func TestAddAttributeAppendsVersions(t *testing.T) {
	e := types.NewEntity(types.EntityPerson, "Julian")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e.AddAttribute("company", "Apple", types.ConfidenceHigh, "note", t0)
	e.AddAttribute("company", "Apple", types.ConfidenceHigh, "note", t0.Add(time.Hour))
	e.AddAttribute("company", "Globex", types.ConfidenceMedium, "chat", t0.Add(2*time.Hour))

	history := e.Attributes["company"]
	if len(history) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(history))
	}
	for i, attr := range history {
		if attr.Version != i+1 {
			t.Errorf("expected version %d at index %d, got %d", i+1, i, attr.Version)
		}
	}
	if !e.UpdatedAt.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("expected UpdatedAt to follow the newest observation, got %v", e.UpdatedAt)
	}
}

func TestLatestAndBestAttribute(t *testing.T) {
	e := types.NewEntity(types.EntityPerson, "Julian")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e.AddAttribute("role", "intern", types.ConfidenceVerified, "hr", t0)
	e.AddAttribute("role", "designer", types.ConfidenceLow, "chat", t0.Add(time.Hour))

	if got := e.LatestAttribute("role"); got == nil || got.Value != "designer" {
		t.Errorf("expected latest 'designer', got %+v", got)
	}
	if got := e.BestAttribute("role"); got == nil || got.Value != "intern" {
		t.Errorf("expected best 'intern' (verified), got %+v", got)
	}
	if got := e.LatestAttribute("absent"); got != nil {
		t.Errorf("expected nil for absent key, got %+v", got)
	}
}

func TestAliasesDeduplicateCaseInsensitively(t *testing.T) {
	e := types.NewEntity(types.EntityPerson, "Julian")

	e.AddAlias("Jules")
	e.AddAlias("jules")
	e.AddAlias("JULIAN") // same as canonical name
	e.AddAlias("  ")

	if len(e.Aliases) != 1 {
		t.Fatalf("expected 1 alias, got %v", e.Aliases)
	}
	if !e.Matches("jules") || !e.Matches("Julian") {
		t.Error("expected entity to match both name and alias")
	}
	if e.Matches("Julia") {
		t.Error("expected no match on a prefix")
	}
}

func TestAddSourceDeduplicates(t *testing.T) {
	e := types.NewEntity(types.EntityPerson, "Julian")
	e.AddSource("note")
	e.AddSource("note")
	e.AddSource("")
	e.AddSource("import:people.md")

	if len(e.Sources) != 2 {
		t.Errorf("expected 2 sources, got %v", e.Sources)
	}
}

// TestCloneIsDeep verifies that mutating a clone never leaks into the
// original record.
func TestCloneIsDeep(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := types.NewEntity(types.EntityPerson, "Julian")
	e.AddAttribute("company", "Apple", types.ConfidenceHigh, "note", t0)
	e.AddAlias("Jules")
	e.AddSource("note")
	e.Embedding = []float32{1, 2, 3}

	clone := e.Clone()
	clone.AddAttribute("company", "Globex", types.ConfidenceHigh, "chat", t0.Add(time.Hour))
	clone.AddAlias("JD")
	clone.AddSource("chat")
	clone.Embedding[0] = 99

	if len(e.Attributes["company"]) != 1 {
		t.Errorf("clone mutation leaked into original history: %v", e.Attributes["company"])
	}
	if len(e.Aliases) != 1 {
		t.Errorf("clone alias leaked into original: %v", e.Aliases)
	}
	if len(e.Sources) != 1 {
		t.Errorf("clone source leaked into original: %v", e.Sources)
	}
	if e.Embedding[0] != 1 {
		t.Errorf("clone embedding leaked into original: %v", e.Embedding)
	}
}
