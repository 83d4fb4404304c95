package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/scrypster/keeper/pkg/types"
)

// PatternExtractor extracts entities and relationships with regular
// expressions. It is the no-dependency fallback used when the LLM
// collaborator is unavailable; recall is limited but it never fails.
type PatternExtractor struct{}

var _ Extractor = (*PatternExtractor)(nil)

// NewPatternExtractor creates a pattern-based extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

var (
	// "my brother Julian", "her mother Rosa"
	familyPersonRe = regexp.MustCompile(`(?i)\b(?:my|his|her|our|their)?\s*(brother|sister|mother|father|wife|husband|daughter|son|cousin|uncle|aunt|friend)\s+([A-Z][a-z]+)`)

	// "Julian Meyer works", "Ada Lovelace is"
	fullNamePersonRe = regexp.MustCompile(`\b([A-Z][a-z]+ [A-Z][a-z]+)\s+(?:works?|is|was|joined|started|manages|reports)`)

	// "Julian works at Apple", with optional "as a designer" tail
	worksAtRe = regexp.MustCompile(`\b([A-Z][a-z]+(?: [A-Z][a-z]+)?)\s+(?:works?|worked|is working|started working|started)\s+(?:at|for)\s+([A-Z][A-Za-z0-9&]+(?: [A-Z][A-Za-z0-9&]+)*)`)

	// "as a designer", "as an engineer"
	roleRe = regexp.MustCompile(`(?i)\bas\s+an?\s+([a-z]+(?:\s[a-z]+)?)`)

	// "I work at Globex"; first-person facts anchor to a self entity
	firstPersonWorksRe = regexp.MustCompile(`\bI\s+(?:work|worked|am working|started working)\s+(?:at|for)\s+([A-Z][A-Za-z0-9&]+(?: [A-Z][A-Za-z0-9&]+)*)`)

	// "Apple Inc", "Initech Corp"
	corpSuffixRe = regexp.MustCompile(`\b([A-Z][A-Za-z0-9& ]+?)\s+(?:Inc|Corp|Corporation|LLC|Ltd|GmbH)\b`)

	// "Julian lives in Berlin", "Apple is located in Cupertino"
	locatedInRe = regexp.MustCompile(`\b([A-Z][a-z]+(?: [A-Z][a-z]+)?)\s+(?:lives?\s+in|is\s+located\s+in|moved\s+to|based\s+in)\s+([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)

	// "Julian manages Maya", "Maya reports to Julian"
	managesRe   = regexp.MustCompile(`\b([A-Z][a-z]+(?: [A-Z][a-z]+)?)\s+manages\s+([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
	reportsToRe = regexp.MustCompile(`\b([A-Z][a-z]+(?: [A-Z][a-z]+)?)\s+reports\s+to\s+([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
)

// familialRelations are the person-to-person surface forms from
// familyPersonRe that imply a family link rather than acquaintance.
var familialRelations = map[string]bool{
	"brother": true, "sister": true, "mother": true, "father": true,
	"wife": true, "husband": true, "daughter": true, "son": true,
	"cousin": true, "uncle": true, "aunt": true,
}

// Extract scans the text with every pattern and assembles the combined
// entity and relationship set. Confidence is capped at medium: pattern
// extraction has no understanding of context.
func (p *PatternExtractor) Extract(ctx context.Context, text, source string) (*Extraction, error) {
	now := time.Now().UTC()
	b := newBuilder(source, now)

	for _, m := range familyPersonRe.FindAllStringSubmatch(text, -1) {
		relation, name := strings.ToLower(m[1]), m[2]
		person := b.entity(types.EntityPerson, name)
		person.AddAttribute("relation", relation, types.ConfidenceMedium, source, now)
		if familialRelations[relation] {
			// The familial link itself matters even though the other
			// endpoint is the note's author; a self entity anchors it.
			self := b.entity(types.EntityPerson, "Me")
			b.relationship(types.RelRelatedTo, self, person)
		} else {
			self := b.entity(types.EntityPerson, "Me")
			b.relationship(types.RelKnows, self, person)
		}
	}

	for _, m := range fullNamePersonRe.FindAllStringSubmatch(text, -1) {
		b.entity(types.EntityPerson, m[1])
	}

	role := ""
	if m := roleRe.FindStringSubmatch(text); m != nil {
		role = strings.ToLower(m[1])
	}

	for _, m := range worksAtRe.FindAllStringSubmatch(text, -1) {
		person := b.entity(types.EntityPerson, m[1])
		org := b.entity(types.EntityOrganization, m[2])
		b.relationship(types.RelWorksAt, person, org)
		person.AddAttribute("company", org.Name, types.ConfidenceMedium, source, now)
		if role != "" {
			person.AddAttribute("role", role, types.ConfidenceMedium, source, now)
		}
	}

	for _, m := range firstPersonWorksRe.FindAllStringSubmatch(text, -1) {
		self := b.entity(types.EntityPerson, "Me")
		org := b.entity(types.EntityOrganization, m[1])
		b.relationship(types.RelWorksAt, self, org)
		self.AddAttribute("company", org.Name, types.ConfidenceMedium, source, now)
		if role != "" {
			self.AddAttribute("role", role, types.ConfidenceMedium, source, now)
		}
	}

	for _, m := range corpSuffixRe.FindAllStringSubmatch(text, -1) {
		b.entity(types.EntityOrganization, strings.TrimSpace(m[1]))
	}

	for _, m := range locatedInRe.FindAllStringSubmatch(text, -1) {
		subject := b.lookup(m[1])
		if subject == nil {
			subject = b.entity(types.EntityPerson, m[1])
		}
		place := b.entity(types.EntityLocation, m[2])
		b.relationship(types.RelLocatedIn, subject, place)
	}

	for _, m := range managesRe.FindAllStringSubmatch(text, -1) {
		b.relationship(types.RelManages, b.entity(types.EntityPerson, m[1]), b.entity(types.EntityPerson, m[2]))
	}
	for _, m := range reportsToRe.FindAllStringSubmatch(text, -1) {
		b.relationship(types.RelReportsTo, b.entity(types.EntityPerson, m[1]), b.entity(types.EntityPerson, m[2]))
	}

	return b.result(), nil
}

// builder accumulates extraction output, deduplicating entities by ID and
// relationships by (type, source, target).
type builder struct {
	source   string
	now      time.Time
	entities map[string]*types.Entity
	order    []string
	rels     map[string]*types.Relationship
	relOrder []string
}

func newBuilder(source string, now time.Time) *builder {
	return &builder{
		source:   source,
		now:      now,
		entities: make(map[string]*types.Entity),
		rels:     make(map[string]*types.Relationship),
	}
}

func (b *builder) entity(t types.EntityType, name string) *types.Entity {
	id := types.NewEntityID(t, name)
	if e, ok := b.entities[id]; ok {
		return e
	}
	e := types.NewEntity(t, name)
	e.Confidence = types.ConfidenceMedium
	e.Sources = []string{b.source}
	e.CreatedAt = b.now
	e.UpdatedAt = b.now
	b.entities[id] = e
	b.order = append(b.order, id)
	return e
}

// lookup finds an already-extracted entity by surface form.
func (b *builder) lookup(name string) *types.Entity {
	for _, id := range b.order {
		if b.entities[id].Matches(name) {
			return b.entities[id]
		}
	}
	return nil
}

func (b *builder) relationship(t types.RelationType, source, target *types.Entity) *types.Relationship {
	rel := types.NewRelationship(t, source.ID, target.ID)
	if existing, ok := b.rels[rel.ID]; ok {
		return existing
	}
	rel.Confidence = types.ConfidenceMedium
	rel.Source = b.source
	rel.CreatedAt = b.now
	rel.UpdatedAt = b.now
	b.rels[rel.ID] = rel
	b.relOrder = append(b.relOrder, rel.ID)
	return rel
}

func (b *builder) result() *Extraction {
	out := &Extraction{}
	for _, id := range b.order {
		out.Entities = append(out.Entities, b.entities[id])
	}
	for _, id := range b.relOrder {
		out.Relationships = append(out.Relationships, b.rels[id])
	}
	return out
}
