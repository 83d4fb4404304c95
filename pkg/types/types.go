// Package types defines the core data structures for the Keeper knowledge
// graph: entities, versioned attributes, relationships, and documents.
// All identifiers are deterministic so that re-extracting the same surface
// form always resolves to the same record.
package types

// EntityType classifies an entity. The set is closed; extraction maps
// unknown NER labels onto one of these or drops the span.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityProject      EntityType = "project"
	EntitySkill        EntityType = "skill"
	EntityLocation     EntityType = "location"
	EntityEvent        EntityType = "event"
	EntityConcept      EntityType = "concept"
	EntityDocument     EntityType = "document"
	EntityTask         EntityType = "task"
	EntityGoal         EntityType = "goal"
)

// ValidEntityTypes lists all valid entity types for validation.
var ValidEntityTypes = []EntityType{
	EntityPerson,
	EntityOrganization,
	EntityProject,
	EntitySkill,
	EntityLocation,
	EntityEvent,
	EntityConcept,
	EntityDocument,
	EntityTask,
	EntityGoal,
}

// IsValidEntityType checks if the given entity type is valid.
func IsValidEntityType(t EntityType) bool {
	for _, valid := range ValidEntityTypes {
		if valid == t {
			return true
		}
	}
	return false
}

// RelationType classifies a directed link between two entities.
type RelationType string

const (
	RelWorksAt          RelationType = "works_at"
	RelKnows            RelationType = "knows"
	RelLocatedIn        RelationType = "located_in"
	RelPartOf           RelationType = "part_of"
	RelRelatedTo        RelationType = "related_to"
	RelCreatedBy        RelationType = "created_by"
	RelManages          RelationType = "manages"
	RelReportsTo        RelationType = "reports_to"
	RelCollaboratesWith RelationType = "collaborates_with"
	RelDependsOn        RelationType = "depends_on"
)

// ValidRelationTypes lists all valid relationship types for validation.
var ValidRelationTypes = []RelationType{
	RelWorksAt,
	RelKnows,
	RelLocatedIn,
	RelPartOf,
	RelRelatedTo,
	RelCreatedBy,
	RelManages,
	RelReportsTo,
	RelCollaboratesWith,
	RelDependsOn,
}

// IsValidRelationType checks if the given relationship type is valid.
func IsValidRelationType(t RelationType) bool {
	for _, valid := range ValidRelationTypes {
		if valid == t {
			return true
		}
	}
	return false
}

// ConfidenceLevel is an ordinal trust rating attached to entities,
// attribute values, and relationships. It is used as a tie-break signal
// during conflict resolution, independent from recency.
type ConfidenceLevel string

const (
	ConfidenceVerified  ConfidenceLevel = "verified"
	ConfidenceHigh      ConfidenceLevel = "high"
	ConfidenceMedium    ConfidenceLevel = "medium"
	ConfidenceLow       ConfidenceLevel = "low"
	ConfidenceUncertain ConfidenceLevel = "uncertain"
)

// confidenceRanks orders confidence levels from least to most trusted.
var confidenceRanks = map[ConfidenceLevel]int{
	ConfidenceUncertain: 0,
	ConfidenceLow:       1,
	ConfidenceMedium:    2,
	ConfidenceHigh:      3,
	ConfidenceVerified:  4,
}

// Rank returns the ordinal position of the confidence level.
// Unknown levels rank below uncertain so malformed input never wins a tie.
func (c ConfidenceLevel) Rank() int {
	if r, ok := confidenceRanks[c]; ok {
		return r
	}
	return -1
}
