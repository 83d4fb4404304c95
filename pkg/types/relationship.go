package types

import "time"

// Relationship is a typed, directed link between two entities.
// At most one record exists per (source, target, type) triple: repeated
// observations update confidence and timestamps instead of duplicating.
type Relationship struct {
	// ID is deterministic from (type, source, target), format rel:type:src:dst.
	ID       string       `json:"id"`
	Type     RelationType `json:"type"`
	SourceID string       `json:"source_entity_id"`
	TargetID string       `json:"target_entity_id"`

	Confidence ConfidenceLevel `json:"confidence"`

	// TemporalContext is an optional free-text validity window, e.g. "2020-2023".
	TemporalContext string `json:"temporal_context,omitempty"`

	// Source is a free-form provenance tag for the observation that
	// produced or last refreshed this relationship.
	Source string `json:"source,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRelationship creates a relationship with a deterministic ID.
func NewRelationship(relType RelationType, sourceID, targetID string) *Relationship {
	now := time.Now().UTC()
	return &Relationship{
		ID:         NewRelationshipID(relType, sourceID, targetID),
		Type:       relType,
		SourceID:   sourceID,
		TargetID:   targetID,
		Confidence: ConfidenceHigh,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewRelationshipID derives the stable identifier for a relationship from
// its type and endpoint entity IDs.
func NewRelationshipID(relType RelationType, sourceID, targetID string) string {
	return "rel:" + string(relType) + ":" + sourceID + ":" + targetID
}

// Involves reports whether the relationship touches the given entity on
// either end.
func (r *Relationship) Involves(entityID string) bool {
	return r.SourceID == entityID || r.TargetID == entityID
}
