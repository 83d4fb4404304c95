package graph

import (
	"sort"
	"strings"

	"github.com/scrypster/keeper/pkg/types"
)

// defaultTrustedSources are provenance tags whose observations outrank
// untrusted ones when recency, confidence, and detail are all tied.
var defaultTrustedSources = []string{"user", "user_confirmed"}

// ConflictEngine derives the current value of each attribute key from its
// append-only history. It never rewrites history: resolution is a pure
// read over the stored versions.
type ConflictEngine struct {
	trusted map[string]bool
}

// NewConflictEngine creates an engine with the given trusted provenance
// tags. Nil falls back to the default trusted set.
func NewConflictEngine(trustedSources []string) *ConflictEngine {
	if trustedSources == nil {
		trustedSources = defaultTrustedSources
	}
	trusted := make(map[string]bool, len(trustedSources))
	for _, s := range trustedSources {
		trusted[strings.ToLower(s)] = true
	}
	return &ConflictEngine{trusted: trusted}
}

// Trusted reports whether the given provenance tag is on the trust list.
func (ce *ConflictEngine) Trusted(source string) bool {
	return ce.trusted[strings.ToLower(source)]
}

// Supersedes reports whether the challenger observation should replace the
// incumbent as the current value for a key. Signals are checked in strict
// order: a later observation always wins, then higher confidence, then the
// more detailed value, then a trusted source over an untrusted one. When
// every signal ties the incumbent stands.
func (ce *ConflictEngine) Supersedes(challenger, incumbent types.Attribute) bool {
	if !challenger.Timestamp.Equal(incumbent.Timestamp) {
		return challenger.Timestamp.After(incumbent.Timestamp)
	}
	if challenger.Confidence.Rank() != incumbent.Confidence.Rank() {
		return challenger.Confidence.Rank() > incumbent.Confidence.Rank()
	}
	if d := detail(challenger.Value) - detail(incumbent.Value); d != 0 {
		return d > 0
	}
	if ce.Trusted(challenger.Source) != ce.Trusted(incumbent.Source) {
		return ce.Trusted(challenger.Source)
	}
	return false
}

// CurrentValue returns the winning observation for one attribute key, or
// nil when the key has no history.
func (ce *ConflictEngine) CurrentValue(e *types.Entity, key string) *types.Attribute {
	history := e.Attributes[key]
	if len(history) == 0 {
		return nil
	}
	winner := history[0]
	for _, attr := range history[1:] {
		if ce.Supersedes(attr, winner) {
			winner = attr
		}
	}
	return &winner
}

// CurrentValues resolves every attribute key of the entity to its current
// observation.
func (ce *ConflictEngine) CurrentValues(e *types.Entity) map[string]types.Attribute {
	if len(e.Attributes) == 0 {
		return nil
	}
	current := make(map[string]types.Attribute, len(e.Attributes))
	for key := range e.Attributes {
		if attr := ce.CurrentValue(e, key); attr != nil {
			current[key] = *attr
		}
	}
	return current
}

// Resolution reports the outcome of conflict resolution for one attribute
// key: the observation that won and how many versions it superseded.
type Resolution struct {
	Key        string          `json:"key"`
	Current    types.Attribute `json:"current"`
	Superseded int             `json:"superseded"`
}

// Resolve runs conflict resolution over every key of the entity and
// returns one resolution per key, ordered by key for stable output.
// History is untouched: superseded versions remain stored as evidence.
func (ce *ConflictEngine) Resolve(e *types.Entity) []Resolution {
	keys := e.AttributeKeys()
	resolutions := make([]Resolution, 0, len(keys))
	for _, key := range keys {
		attr := ce.CurrentValue(e, key)
		if attr == nil {
			continue
		}
		resolutions = append(resolutions, Resolution{
			Key:        key,
			Current:    *attr,
			Superseded: len(e.Attributes[key]) - 1,
		})
	}
	sort.Slice(resolutions, func(i, j int) bool {
		return resolutions[i].Key < resolutions[j].Key
	})
	return resolutions
}

// detail scores how specific a value is. Longer trimmed text carries more
// information; whitespace padding does not count.
func detail(value string) int {
	return len(strings.TrimSpace(value))
}
