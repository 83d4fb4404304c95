package types

// SearchMode selects the retrieval strategy.
type SearchMode string

const (
	// SearchKeyword matches query terms against stored text; title matches
	// count double.
	SearchKeyword SearchMode = "keyword"

	// SearchSemantic ranks by cosine similarity between the query embedding
	// and stored embeddings. Degrades silently to no results when no
	// embedding collaborator is available.
	SearchSemantic SearchMode = "semantic"

	// SearchEntity extracts entities from the query and matches documents
	// that reference them by exact case-insensitive name.
	SearchEntity SearchMode = "entity"

	// SearchHybrid runs all applicable strategies and merges their output
	// into a single ranked list.
	SearchHybrid SearchMode = "hybrid"
)

// IsValidSearchMode checks if the given mode is one of the four strategies.
func IsValidSearchMode(m SearchMode) bool {
	switch m {
	case SearchKeyword, SearchSemantic, SearchEntity, SearchHybrid:
		return true
	}
	return false
}

// QueryContext carries a graph query and its retrieval knobs.
type QueryContext struct {
	// Query is the free-text question or topic.
	Query string `json:"query"`

	// Mode selects the retrieval strategy (default: hybrid).
	Mode SearchMode `json:"mode,omitempty"`

	// MaxResults caps the merged, ranked result list (default: 10).
	MaxResults int `json:"max_results,omitempty"`

	// IncludeRelated pulls in relationships touching any entity in the
	// result set.
	IncludeRelated bool `json:"include_related,omitempty"`

	// ConfidenceThreshold drops entities below this level from the result
	// set. Empty means no confidence filtering.
	ConfidenceThreshold ConfidenceLevel `json:"confidence_threshold,omitempty"`
}

// Normalize applies defaults and clamps limits.
func (qc *QueryContext) Normalize() {
	if !IsValidSearchMode(qc.Mode) {
		qc.Mode = SearchHybrid
	}
	if qc.MaxResults < 1 {
		qc.MaxResults = 10
	}
	if qc.MaxResults > 100 {
		qc.MaxResults = 100
	}
}
