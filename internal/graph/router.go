package graph

import (
	"strings"

	"github.com/scrypster/keeper/pkg/types"
)

// EntityStatus qualifies an entity observation for routing purposes.
type EntityStatus string

const (
	StatusCurrent    EntityStatus = "current"
	StatusHistorical EntityStatus = "historical"
	StatusPlanned    EntityStatus = "planned"
	StatusUncertain  EntityStatus = "uncertain"
)

// personContext is the inferred filing context for a person entity.
type personContext string

const (
	contextWork     personContext = "work"
	contextPersonal personContext = "personal"
	contextProjects personContext = "projects"
)

// Attribute-key vocabularies used to infer a person's filing context.
// Matching is by substring so "company_name" still reads as work.
var (
	workVocab     = []string{"job", "position", "company", "work", "employer", "title"}
	personalVocab = []string{"family", "hobby", "personal", "relation", "birthday"}
	projectVocab  = []string{"project"}
)

// personDestinations maps an inferred context to a destination.
var personDestinations = map[personContext]string{
	contextWork:     "Professional Journey.md",
	contextPersonal: "Personal Info.md",
	contextProjects: "Projects.md",
}

// typeDestinations routes non-person entity types. Types absent from this
// table fall back to a per-entity page under Knowledge Base.
var typeDestinations = map[types.EntityType]string{
	types.EntityOrganization: "Professional Journey.md",
	types.EntityProject:      "Projects.md",
	types.EntityTask:         "Projects.md",
	types.EntityGoal:         "Plans.md",
	types.EntitySkill:        "Professional Journey.md",
	types.EntityLocation:     "Personal Info.md",
}

// statusPrefixes shift a destination into a status folder. Current (and any
// unknown status) files at the destination itself.
var statusPrefixes = map[EntityStatus]string{
	StatusHistorical: "Archive/",
	StatusPlanned:    "Plans/",
	StatusUncertain:  "Inbox/",
}

// Router computes the canonical destination an entity's information files
// under. Routing is a pure table lookup: it performs no I/O and always
// returns a non-empty destination for every (type, status) combination.
type Router struct{}

// NewRouter creates a router.
func NewRouter() *Router {
	return &Router{}
}

// Destination returns the canonical destination for the entity under the
// given status. Person entities route by inferred context from their
// attribute keys; other registered types route by type; everything else
// gets a dedicated page keyed by entity ID.
func (r *Router) Destination(e *types.Entity, status EntityStatus) string {
	return statusPrefixes[status] + r.base(e)
}

func (r *Router) base(e *types.Entity) string {
	if e.Type == types.EntityPerson {
		return personDestinations[inferPersonContext(e)]
	}
	if dest, ok := typeDestinations[e.Type]; ok {
		return dest
	}
	return "Knowledge Base/" + e.ID + ".md"
}

// inferPersonContext classifies a person by their attribute keys. Work
// vocabulary wins over personal when both match; persons with no matching
// keys default to personal.
func inferPersonContext(e *types.Entity) personContext {
	keys := e.AttributeKeys()
	if matchesVocab(keys, projectVocab) && !matchesVocab(keys, workVocab) {
		return contextProjects
	}
	if matchesVocab(keys, workVocab) {
		return contextWork
	}
	return contextPersonal
}

func matchesVocab(keys, vocab []string) bool {
	for _, key := range keys {
		lower := strings.ToLower(key)
		for _, term := range vocab {
			if strings.Contains(lower, term) {
				return true
			}
		}
	}
	return false
}
