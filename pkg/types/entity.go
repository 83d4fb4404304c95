package types

import (
	"strings"
	"time"
	"unicode"
)

// Attribute is a single historical value of one entity property at one
// point in time. Attribute histories are append-only: values are never
// deleted or mutated in place, and the "current" value for a key is derived
// by the conflict engine, not stored.
type Attribute struct {
	Key        string          `json:"key"`
	Value      string          `json:"value"`
	Confidence ConfidenceLevel `json:"confidence"`
	Source     string          `json:"source"`     // free-form provenance tag
	Timestamp  time.Time       `json:"timestamp"`  // when this value was observed
	Version    int             `json:"version"`    // monotonically increasing per key
}

// Entity is a uniquely identified real-world thing tracked by the graph.
type Entity struct {
	// ID is deterministic from (type, normalized name), format ent:type:slug.
	// Re-extracting the same surface form always resolves to the same record.
	ID   string     `json:"id"`
	Type EntityType `json:"type"`

	// Name is the canonical display name; Aliases holds alternate surface
	// forms, deduplicated case-insensitively.
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`

	// Attributes maps each key to its full append-only version history,
	// ordered oldest first.
	Attributes map[string][]Attribute `json:"attributes,omitempty"`

	// Embedding is an optional vector supplied by the embedding collaborator.
	// When present its length matches the installation-wide embedding width.
	Embedding []float32 `json:"embedding,omitempty"`

	// Confidence is the entity-level trust rating, independent from
	// per-attribute confidence.
	Confidence ConfidenceLevel `json:"confidence"`

	// Sources records provenance tags of the observations that produced
	// this entity (e.g. "user", a document title).
	Sources []string `json:"sources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // refreshed on any mutation
}

// NewEntity creates an entity with a deterministic ID and initialized
// attribute storage.
func NewEntity(entityType EntityType, name string) *Entity {
	now := time.Now().UTC()
	return &Entity{
		ID:         NewEntityID(entityType, name),
		Type:       entityType,
		Name:       name,
		Attributes: make(map[string][]Attribute),
		Confidence: ConfidenceHigh,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewEntityID derives the stable identifier for an entity from its type and
// normalized name. The same (type, name) pair always yields the same ID.
func NewEntityID(entityType EntityType, name string) string {
	return "ent:" + string(entityType) + ":" + Slugify(name)
}

// Slugify normalizes a surface form for use in deterministic IDs:
// lowercase, runs of whitespace collapsed to underscores, and everything
// except letters, digits, and underscores stripped.
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// AddAttribute appends a new versioned value under the given key at the
// given observation time. Existing versions are never modified: repeated
// observations of the same value append a fresh version with a later
// timestamp, so attribute history counts observations as evidence.
func (e *Entity) AddAttribute(key, value string, confidence ConfidenceLevel, source string, timestamp time.Time) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][]Attribute)
	}
	history := e.Attributes[key]
	e.Attributes[key] = append(history, Attribute{
		Key:        key,
		Value:      value,
		Confidence: confidence,
		Source:     source,
		Timestamp:  timestamp,
		Version:    len(history) + 1,
	})
	if timestamp.After(e.UpdatedAt) {
		e.UpdatedAt = timestamp
	}
}

// LatestAttribute returns the most recently observed value for a key,
// or nil when the key has no history.
func (e *Entity) LatestAttribute(key string) *Attribute {
	history := e.Attributes[key]
	if len(history) == 0 {
		return nil
	}
	latest := &history[0]
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.After(latest.Timestamp) {
			latest = &history[i]
		}
	}
	return latest
}

// BestAttribute returns the value with the highest confidence for a key,
// breaking confidence ties by recency. Returns nil when the key has no
// history.
func (e *Entity) BestAttribute(key string) *Attribute {
	history := e.Attributes[key]
	if len(history) == 0 {
		return nil
	}
	best := &history[0]
	for i := 1; i < len(history); i++ {
		a := &history[i]
		if a.Confidence.Rank() > best.Confidence.Rank() ||
			(a.Confidence.Rank() == best.Confidence.Rank() && a.Timestamp.After(best.Timestamp)) {
			best = a
		}
	}
	return best
}

// HasAlias reports whether the entity already carries the given alias,
// compared case-insensitively against both the canonical name and the
// alias set.
func (e *Entity) HasAlias(alias string) bool {
	if strings.EqualFold(e.Name, alias) {
		return true
	}
	for _, a := range e.Aliases {
		if strings.EqualFold(a, alias) {
			return true
		}
	}
	return false
}

// AddAlias records an alternate surface form, skipping case-insensitive
// duplicates.
func (e *Entity) AddAlias(alias string) {
	alias = strings.TrimSpace(alias)
	if alias == "" || e.HasAlias(alias) {
		return
	}
	e.Aliases = append(e.Aliases, alias)
}

// AttributeKeys returns the set of attribute keys with at least one version.
func (e *Entity) AttributeKeys() []string {
	keys := make([]string, 0, len(e.Attributes))
	for k, history := range e.Attributes {
		if len(history) > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// Matches reports whether the given surface form refers to this entity by
// exact case-insensitive comparison against the name and aliases.
func (e *Entity) Matches(name string) bool {
	return e.HasAlias(name)
}

// AddSource records a provenance tag, skipping exact duplicates.
func (e *Entity) AddSource(source string) {
	if source == "" {
		return
	}
	for _, s := range e.Sources {
		if s == source {
			return
		}
	}
	e.Sources = append(e.Sources, source)
}

// Touch refreshes UpdatedAt to the current time.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy. Attribute histories, aliases, sources, and
// the embedding are copied so mutating the clone never leaks into the
// original.
func (e *Entity) Clone() *Entity {
	clone := *e
	clone.Aliases = append([]string(nil), e.Aliases...)
	clone.Sources = append([]string(nil), e.Sources...)
	clone.Embedding = append([]float32(nil), e.Embedding...)
	clone.Attributes = make(map[string][]Attribute, len(e.Attributes))
	for key, history := range e.Attributes {
		clone.Attributes[key] = append([]Attribute(nil), history...)
	}
	return &clone
}
