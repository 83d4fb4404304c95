package storage

import (
	"errors"

	"github.com/scrypster/keeper/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 200).
	Limit int

	// EntityType filters entities by type. Empty means no type filter.
	EntityType types.EntityType
}

// Normalize applies defaults and clamps the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 20
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
}

// Offset calculates the row offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// ScoredDocument pairs a document with its similarity score from a vector
// search. Score is in [-1, 1]; the retrieval engine applies its own floors.
type ScoredDocument struct {
	Document types.Document
	Score    float64
}

// ScoredEntity pairs an entity with its similarity score from a vector search.
type ScoredEntity struct {
	Entity types.Entity
	Score  float64
}

// Stats holds knowledge base counters.
type Stats struct {
	Entities       int                      `json:"entities"`
	Relationships  int                      `json:"relationships"`
	Documents      int                      `json:"documents"`
	EntitiesByType map[types.EntityType]int `json:"entities_by_type"`

	// AttributeVersions is the total number of stored attribute values
	// across all entities. History is append-only, so this only grows;
	// exposing it keeps that growth observable.
	AttributeVersions int `json:"attribute_versions"`
}
